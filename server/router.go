package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.temporal.io/server/common/clock"
	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"

	"github.com/biferdou/ttlgate/common/ssl"
	"github.com/biferdou/ttlgate/common/tracking"
)

const requestIDHeader = "X-Request-Id"

// RouterDeps carries everything the router needs; all handed in explicitly
// so tests can assemble routers around fake clocks and throwaway registries.
type RouterDeps struct {
	Tracker    *tracking.Tracker
	Registry   *tracking.Registry
	SSLManager *ssl.Manager
	Limiter    *RequestRateLimiter
	TimeSource clock.TimeSource
	Logger     log.Logger
	Version    string
	StartedAt  time.Time
}

// NewRouter builds the gin engine: request-ID, rate limiting and activity
// tracking middleware, then the handler routes.
func NewRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	if deps.Limiter != nil {
		engine.Use(rateLimitMiddleware(deps.Limiter))
	}
	engine.Use(trackingMiddleware(deps.Tracker))
	engine.Use(accessLogMiddleware(deps.Logger, deps.TimeSource))

	h := &handlers{deps: deps}
	engine.GET("/", h.root)
	engine.GET("/health", h.health)
	engine.GET("/health/ready", h.ready)
	engine.GET("/health/live", h.live)
	engine.GET("/ssl-status", h.sslStatus)
	engine.GET("/metrics", h.metrics)
	engine.NoRoute(h.notFound)
	return engine
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func rateLimitMiddleware(limiter *RequestRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "Too Many Requests",
				"message": "request rate limit exceeded",
				"status":  http.StatusTooManyRequests,
			})
			return
		}
		c.Next()
	}
}

// trackingMiddleware applies the activity update once per request. Tracking
// never fails the request: an untracked request just goes without the TTL
// headers.
func trackingMiddleware(tracker *tracking.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tracker != nil {
			if info, ok := tracker.RecordRequest(c.Request.RemoteAddr); ok {
				c.Header("X-Connection-Ttl", strconv.FormatInt(int64(info.CurrentTTL/time.Second), 10))
				c.Header("X-Connection-Expires", info.ExpiresAt.Format(time.RFC3339))
			}
		}
		c.Next()
	}
}

func accessLogMiddleware(logger log.Logger, timeSource clock.TimeSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger == nil {
			c.Next()
			return
		}
		start := timeSource.Now()
		c.Next()
		logger.Info("request handled",
			tag.NewStringTag("method", c.Request.Method),
			tag.NewStringTag("path", c.Request.URL.Path),
			tag.NewInt("status", c.Writer.Status()),
			tag.NewStringTag("remote_addr", c.Request.RemoteAddr),
			tag.NewStringTag("request_id", c.GetString("request_id")),
			tag.NewDurationTag("latency", timeSource.Now().Sub(start)))
	}
}
