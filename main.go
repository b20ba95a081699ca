package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"visit-ledger/config"
	"visit-ledger/database"
	"visit-ledger/handlers"
	"visit-ledger/logs"
	"visit-ledger/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logs.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ledger, err := database.Open(cfg.Ledger.Backend, cfg.Ledger.SQLiteDSN)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer ledger.Close()

	gin.SetMode(cfg.Server.GinMode)
	h := handlers.New(handlers.Options{
		Ledger: ledger,
		Credentials: handlers.Credentials{
			Username:     cfg.Admin.Username,
			Password:     cfg.Admin.Password,
			PasswordHash: cfg.Admin.PasswordHash,
		},
		MaxVisits:         cfg.Limits.MaxVisitsPerIP,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		Logger:            logger,
	})

	var metricsServer *http.Server
	if cfg.Server.MetricsAddr != "" {
		prometheus.MustRegister(metrics.NewLedgerCollector(ledger, logger))
		metricsServer = metrics.StartMetricsServer(cfg.Server.MetricsAddr, logger)
	}

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("addr", cfg.Server.ListenAddr), zap.Error(err))
	}
	logger.Info("Server running at "+displayURL(ln.Addr().String()),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Int("max_visits_per_ip", cfg.Limits.MaxVisitsPerIP),
	)

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownServer(shutdownCtx, logger, "Server", srv)
	shutdownServer(shutdownCtx, logger, "Metrics server", metricsServer)
}

// shutdownServer drains srv and logs a failure under name. A nil server is
// skipped.
func shutdownServer(ctx context.Context, logger *zap.Logger, name string, srv *http.Server) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(name+" shutdown", zap.Error(err))
	}
}

// displayURL turns a listen address into a browsable URL.
func displayURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
