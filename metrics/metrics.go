package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"visit-ledger/database"
)

var (
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visit_ledger_requests_total",
			Help: "Requests seen by the visit recorder",
		},
		[]string{"result"},
	)

	AdminAuth = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "visit_ledger_admin_auth_total",
			Help: "Admin authentication attempts",
		},
		[]string{"result"},
	)

	Clears = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "visit_ledger_clears_total",
			Help: "Times the visit ledger was cleared",
		},
	)
)

func init() {
	prometheus.MustRegister(Requests)
	prometheus.MustRegister(AdminAuth)
	prometheus.MustRegister(Clears)
}

var (
	visitsDesc = prometheus.NewDesc(
		"visit_ledger_visits",
		"Records currently in the visit ledger",
		nil, nil,
	)
	trackedDesc = prometheus.NewDesc(
		"visit_ledger_tracked_ips",
		"IPs with a visit counter",
		nil, nil,
	)
	loginsDesc = prometheus.NewDesc(
		"visit_ledger_logins",
		"Recorded admin logins",
		nil, nil,
	)
)

// LedgerCollector reports ledger sizes at scrape time.
type LedgerCollector struct {
	ledger database.Ledger
	logger *zap.Logger
}

func NewLedgerCollector(ledger database.Ledger, logger *zap.Logger) *LedgerCollector {
	return &LedgerCollector{ledger: ledger, logger: logger}
}

func (c *LedgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- visitsDesc
	ch <- trackedDesc
	ch <- loginsDesc
}

func (c *LedgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := c.ledger.Stats(ctx)
	if err != nil {
		c.logger.Warn("collect ledger stats", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(visitsDesc, prometheus.GaugeValue, float64(stats.Visits))
	ch <- prometheus.MustNewConstMetric(trackedDesc, prometheus.GaugeValue, float64(stats.TrackedIPs))
	ch <- prometheus.MustNewConstMetric(loginsDesc, prometheus.GaugeValue, float64(stats.Logins))
}

// StartMetricsServer serves the default registry on addr until the returned
// server is shut down.
func StartMetricsServer(addr string, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("metrics listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	return server
}
