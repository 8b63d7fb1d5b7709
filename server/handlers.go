package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type handlers struct {
	deps RouterDeps
}

const indexPage = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>ttlgate</title></head>
<body>
<h1>ttlgate</h1>
<p>TLS-terminating HTTP server with adaptive per-IP connection tracking.</p>
<ul>
<li><a href="/health">/health</a> - full health check</li>
<li><a href="/health/ready">/health/ready</a> - readiness probe</li>
<li><a href="/health/live">/health/live</a> - liveness probe</li>
<li><a href="/ssl-status">/ssl-status</a> - certificate information</li>
<li><a href="/metrics">/metrics</a> - connection and TTL metrics</li>
</ul>
<footer><p>Version: %s</p></footer>
</body>
</html>
`

func (h *handlers) root(c *gin.Context) {
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(indexPage, h.deps.Version)))
}

func (h *handlers) health(c *gin.Context) {
	now := h.deps.TimeSource.Now()

	sslCheck := "ok"
	if h.deps.SSLManager != nil && h.deps.SSLManager.Info().IsExpired {
		sslCheck = "degraded"
	}

	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      now.Unix(),
		"uptime_seconds": int64(now.Sub(h.deps.StartedAt) / time.Second),
		"version":        h.deps.Version,
		"service":        "ttlgate",
		"checks": gin.H{
			"ssl":      sslCheck,
			"tracking": "ok",
		},
	})
}

func (h *handlers) ready(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"status":    "ready",
		"timestamp": h.deps.TimeSource.Now().Unix(),
		"checks": gin.H{
			"ssl_certificates": "ready",
			"ttl_controller":   "ready",
		},
	})
}

func (h *handlers) live(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": h.deps.TimeSource.Now().Unix(),
	})
}

func (h *handlers) sslStatus(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")

	if h.deps.SSLManager == nil {
		c.JSON(http.StatusOK, gin.H{"status": "disabled"})
		return
	}

	info := h.deps.SSLManager.Info()
	status := "active"
	if info.IsExpired {
		status = "expired"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"certificate": gin.H{
			"subject":           info.Subject,
			"issuer":            info.Issuer,
			"valid_from":        info.NotBefore.Format(time.RFC3339),
			"valid_until":       info.NotAfter.Format(time.RFC3339),
			"days_until_expiry": info.DaysUntilExpiry,
			"is_expired":        info.IsExpired,
		},
	})
}

func (h *handlers) metrics(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, h.deps.Registry.MetricsSnapshot(h.deps.TimeSource.Now()))
}

func (h *handlers) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"error":   "Not Found",
		"message": fmt.Sprintf("the requested path '%s' was not found on this server", c.Request.URL.Path),
		"status":  http.StatusNotFound,
	})
}
