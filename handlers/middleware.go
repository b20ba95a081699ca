package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"visit-ledger/metrics"
)

const requestIDKey = "request_id"

// RequestLogger tags each request with an id and logs it once it completes.
// Errors attached with c.Error are logged at error level.
func (h *Handler) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.NewString()
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", id),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", h.clientIP(c)),
		}
		if len(c.Errors) > 0 {
			h.logger.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		h.logger.Info("request", fields...)
	}
}

// Recovery turns a panic into a generic 500 and logs the details.
func (h *Handler) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic in handler",
					zap.Any("panic", rec),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				c.String(http.StatusInternalServerError, internalErrorBody)
				c.Abort()
			}
		}()
		c.Next()
	}
}

// RateLimit counts the request against the client IP and rejects it once the
// IP has used up its visits. Accepted requests are recorded in the ledger.
func (h *Handler) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := h.clientIP(c)
		allowed, err := h.ledger.RecordVisit(c.Request.Context(), ip, h.now(), h.maxVisits)
		if err != nil {
			h.internalError(c, fmt.Errorf("record visit for %s: %w", ip, err))
			return
		}
		if !allowed {
			metrics.Requests.WithLabelValues("rate_limited").Inc()
			c.String(http.StatusTooManyRequests, "Too many requests")
			c.Abort()
			return
		}
		metrics.Requests.WithLabelValues("accepted").Inc()
		c.Next()
	}
}

// AdminAuth requires HTTP Basic credentials and records every successful
// login.
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !h.credentials.Match(user, pass) {
			metrics.AdminAuth.WithLabelValues("failure").Inc()
			c.Header("WWW-Authenticate", `Basic realm="admin"`)
			c.String(http.StatusUnauthorized, "Access denied")
			c.Abort()
			return
		}

		ip := h.clientIP(c)
		if err := h.ledger.RecordLogin(c.Request.Context(), ip, h.now()); err != nil {
			h.internalError(c, fmt.Errorf("record login for %s: %w", ip, err))
			return
		}
		metrics.AdminAuth.WithLabelValues("success").Inc()
		c.Next()
	}
}
