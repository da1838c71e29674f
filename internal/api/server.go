package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ring-scanner/internal/aggregator"
	"github.com/ring-scanner/internal/config"
	"github.com/ring-scanner/internal/metrics"
	"github.com/ring-scanner/internal/snapshot"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultHistoryLimit = 10

	limiterPruneInterval = time.Minute
	limiterIdleTimeout   = 10 * time.Minute
)

// Trigger starts the next scan cycle early
type Trigger interface {
	Trigger() bool
}

type Server struct {
	config      *config.Config
	snapshot    *snapshot.Manager
	metrics     *metrics.Collector
	gatherer    prometheus.Gatherer
	trigger     Trigger
	router      *gin.Engine
	httpServer  *http.Server
	rateLimiter *RateLimiter
	done        chan struct{}
	stopOnce    sync.Once
}

type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	rps := float64(requestsPerMinute) / 60.0
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    max(requestsPerMinute/10, 1),
	}
}

// GetLimiter returns the limiter for key, creating it on first use
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	now := time.Now().UnixNano()

	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, exists := rl.limiters[key]; exists {
		entry.lastSeen.Store(now)
		return entry.limiter
	}

	entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
	entry.lastSeen.Store(now)
	rl.limiters[key] = entry

	return entry.limiter
}

// Prune drops limiters not used since before now-idle and returns how many
// were removed.
func (rl *RateLimiter) Prune(now time.Time, idle time.Duration) int {
	cutoff := now.Add(-idle).UnixNano()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Load() < cutoff {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// NewServer builds the HTTP status server. gatherer backs the metrics
// endpoint and trigger may be nil when scans cannot be started on demand.
func NewServer(cfg *config.Config, snap *snapshot.Manager, metricsCollector *metrics.Collector,
	gatherer prometheus.Gatherer, trigger Trigger) *Server {

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		config:      cfg,
		snapshot:    snap,
		metrics:     metricsCollector,
		gatherer:    gatherer,
		trigger:     trigger,
		router:      router,
		rateLimiter: NewRateLimiter(cfg.API.RateLimitPerMinute),
		done:        make(chan struct{}),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.metricsMiddleware())

	// Public endpoints
	s.router.GET("/health", s.handleHealth)

	// Metrics endpoint (usually scraped by Prometheus)
	if s.config.Metrics.Enabled && s.gatherer != nil {
		s.router.GET(s.config.Metrics.Endpoint, gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	// Protected endpoints
	protected := s.router.Group("/")
	if s.config.API.EnableAPIKeyAuth {
		protected.Use(s.authMiddleware())
	}
	if s.config.API.EnableIPRateLimit {
		protected.Use(s.rateLimitMiddleware())
	}

	protected.GET("/report", s.handleReport)
	protected.GET("/status", s.handleStatus)
	protected.GET("/history", s.handleHistory)
	protected.POST("/scan", s.handleScan)
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// Shutdown, including one that happened before Start.
func (s *Server) Start() error {
	if s.config.API.EnableIPRateLimit {
		go s.pruneLimiters()
	}

	log.Infof("Starting API server on %s", s.config.API.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.done) })
	log.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) pruneLimiters() {
	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			if removed := s.rateLimiter.Prune(now, limiterIdleTimeout); removed > 0 {
				log.Debugf("Pruned %d idle rate limiters, %d remaining", removed, s.rateLimiter.Len())
			}
		}
	}
}

// Middleware

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   statusCode,
			"duration": duration.Milliseconds(),
			"ip":       c.ClientIP(),
		}).Debug("API request")
	}
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		if route := c.FullPath(); route != "" {
			path = route
		}

		s.metrics.RecordAPIRequest(method, path, status)
		s.metrics.RecordAPIDuration(method, path, duration)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	expectedKey := os.Getenv(s.config.API.APIKeyEnv)
	if expectedKey == "" {
		log.Warn("API key not set in environment, authentication disabled")
	}

	return func(c *gin.Context) {
		if expectedKey == "" {
			c.Next()
			return
		}

		// Check header first
		apiKey := c.GetHeader("X-Api-Key")
		if apiKey == "" {
			// Check query parameter
			apiKey = c.Query("key")
		}

		if apiKey != expectedKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or missing API key",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := s.rateLimiter.GetLimiter(ip)

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// Handlers

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleReport(c *gin.Context) {
	report := s.snapshot.Get()
	if report == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No scan report available yet",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleStatus(c *gin.Context) {
	report := s.snapshot.Get()
	if report == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "No scan report available yet",
		})
		return
	}

	up, down := aggregator.CountStatus(report)
	c.JSON(http.StatusOK, gin.H{
		"scan_timestamp": report.ScanTimestamp,
		"targets":        len(report.Results),
		"up":             up,
		"down":           down,
		"all_up":         report.AllUp(),
		"cycles":         s.snapshot.Updates(),
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid limit parameter",
			})
			return
		}
		limit = parsed
	}
	if historyLimit := s.config.Storage.HistoryLimit; historyLimit > 0 && limit > historyLimit {
		limit = historyLimit
	}

	reports, err := s.snapshot.History(limit)
	if err != nil {
		log.Errorf("Failed to load report history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(reports),
		"reports": reports,
	})
}

func (s *Server) handleScan(c *gin.Context) {
	if s.trigger == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Scans cannot be triggered in single-cycle mode",
		})
		return
	}

	log.Info("Manual scan triggered via API")
	queued := s.trigger.Trigger()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Scan triggered",
		"queued":  queued,
	})
}
