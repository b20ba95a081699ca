package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"visit-ledger/database"
	"visit-ledger/metrics"
	"visit-ledger/views"
)

const (
	welcomeBody       = "Welcome to the website. Your IP has been recorded."
	notFoundBody      = "Not found"
	internalErrorBody = "Internal Server Error"
)

type Options struct {
	Ledger      database.Ledger
	Credentials Credentials
	MaxVisits   int
	// TrustProxyHeaders takes the client IP from X-Real-IP or
	// X-Forwarded-For instead of the connection address.
	TrustProxyHeaders bool
	Logger            *zap.Logger
	Now               func() time.Time
}

type Handler struct {
	ledger            database.Ledger
	credentials       Credentials
	maxVisits         int
	trustProxyHeaders bool
	logger            *zap.Logger
	now               func() time.Time
}

func New(opts Options) *Handler {
	h := &Handler{
		ledger:            opts.Ledger,
		credentials:       opts.Credentials,
		maxVisits:         opts.MaxVisits,
		trustProxyHeaders: opts.TrustProxyHeaders,
		logger:            opts.Logger,
		now:               opts.Now,
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Router wires the pipeline: request log, recovery, rate limit and visit
// recording, then route dispatch.
func (h *Handler) Router() *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.SetHTMLTemplate(views.Templates())
	router.Use(h.RequestLogger(), h.Recovery(), h.RateLimit())

	router.GET("/", h.Landing)

	admin := router.Group("/admin")
	admin.Use(h.AdminAuth())
	{
		admin.GET("", h.AdminPage)
		admin.POST("/clear", h.ClearVisits)
	}

	router.NoRoute(h.NotFound)
	return router
}

func (h *Handler) Landing(c *gin.Context) {
	c.String(http.StatusOK, welcomeBody)
}

func (h *Handler) AdminPage(c *gin.Context) {
	ctx := c.Request.Context()
	visits, err := h.ledger.Visits(ctx)
	if err != nil {
		h.internalError(c, fmt.Errorf("list visits: %w", err))
		return
	}
	logins, err := h.ledger.Logins(ctx)
	if err != nil {
		h.internalError(c, fmt.Errorf("list logins: %w", err))
		return
	}

	page := views.ParsePage(c.Query("page"))
	search := c.Query("search")
	c.HTML(http.StatusOK, views.AdminTemplate, views.BuildAdminPage(visits, logins, page, search))
}

func (h *Handler) ClearVisits(c *gin.Context) {
	removed, err := h.ledger.ClearVisits(c.Request.Context())
	if err != nil {
		h.internalError(c, fmt.Errorf("clear visits: %w", err))
		return
	}
	metrics.Clears.Inc()
	h.logger.Info("visit ledger cleared", zap.Int("removed", removed), zap.String("by", h.clientIP(c)))
	c.Redirect(http.StatusFound, "/admin")
}

func (h *Handler) NotFound(c *gin.Context) {
	c.String(http.StatusNotFound, notFoundBody)
}

func (h *Handler) internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.String(http.StatusInternalServerError, internalErrorBody)
	c.Abort()
}

func (h *Handler) clientIP(c *gin.Context) string {
	if h.trustProxyHeaders {
		if ip := strings.TrimSpace(c.GetHeader("X-Real-IP")); ip != "" {
			return ip
		}
		if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
			ips := strings.Split(fwd, ",")
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(c.Request.RemoteAddr))
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
