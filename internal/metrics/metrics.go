package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the regime watcher.
type Metrics struct {
	// Provider
	FetchTotal    *prometheus.CounterVec // labels: exchange
	FetchErrors   *prometheus.CounterVec // labels: exchange, reason
	FetchDur      *prometheus.HistogramVec
	CandlesLoaded prometheus.Counter

	// Engine
	SignalComputeDur  prometheus.Histogram
	ProfileComputeDur prometheus.Histogram
	ProfilesAbsent    prometheus.Counter
	RegimeState       *prometheus.GaugeVec   // labels: instrument, value = state ordinal
	RegimeTransitions *prometheus.CounterVec // labels: to
	ADX               *prometheus.GaugeVec   // labels: instrument

	// Fan-out
	NotificationsSent   *prometheus.CounterVec // labels: notifier
	NotificationErrors  *prometheus.CounterVec // labels: notifier
	PublishErrors       prometheus.Counter
	SQLiteCommitDur     prometheus.Histogram
	WSClients           prometheus.Gauge
	WSBroadcastsDropped prometheus.Counter
	BroadcastLag        prometheus.Histogram

	// Circuit breaker
	CircuitBreakerState *prometheus.GaugeVec // labels: exchange; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec
}

// NewMetrics registers and returns all Prometheus metrics. A nil reg uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_fetch_total",
			Help: "Candle fetches attempted per exchange",
		}, []string{"exchange"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_fetch_errors_total",
			Help: "Candle fetch failures per exchange and reason",
		}, []string{"exchange", "reason"}),
		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regime_fetch_duration_seconds",
			Help:    "Exchange candle fetch latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"exchange"}),
		CandlesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regime_candles_loaded_total",
			Help: "Candles received from providers",
		}),

		SignalComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regime_signal_compute_duration_seconds",
			Help:    "Full-window signal recomputation latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		ProfileComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regime_profile_compute_duration_seconds",
			Help:    "Volume profile computation latency",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		ProfilesAbsent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regime_profiles_absent_total",
			Help: "Windows that produced no volume profile (empty or zero-width)",
		}),
		RegimeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regime_state",
			Help: "Last-bar regime (2=strong up, 1=weak up, 0=ranging, -1=weak down, -2=strong down)",
		}, []string{"instrument"}),
		RegimeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_transitions_total",
			Help: "Regime changes by destination state",
		}, []string{"to"}),
		ADX: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regime_adx",
			Help: "Last-bar ADX",
		}, []string{"instrument"}),

		NotificationsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_notifications_sent_total",
			Help: "Alerts delivered per notifier",
		}, []string{"notifier"}),
		NotificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_notification_errors_total",
			Help: "Alert delivery failures per notifier",
		}, []string{"notifier"}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regime_publish_errors_total",
			Help: "Snapshot publish failures",
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regime_sqlite_commit_duration_seconds",
			Help:    "SQLite candle cache commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regime_ws_clients",
			Help: "Connected WebSocket clients",
		}),
		WSBroadcastsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regime_ws_broadcasts_dropped_total",
			Help: "Messages dropped because a client's send queue was full",
		}),
		BroadcastLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regime_broadcast_lag_seconds",
			Help:    "Time from snapshot computation to WebSocket fan-out",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regime_circuit_breaker_state",
			Help: "Provider circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"exchange"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regime_circuit_breaker_trips_total",
			Help: "Times a provider circuit breaker tripped open",
		}, []string{"exchange"}),
	}

	reg.MustRegister(
		m.FetchTotal,
		m.FetchErrors,
		m.FetchDur,
		m.CandlesLoaded,
		m.SignalComputeDur,
		m.ProfileComputeDur,
		m.ProfilesAbsent,
		m.RegimeState,
		m.RegimeTransitions,
		m.ADX,
		m.NotificationsSent,
		m.NotificationErrors,
		m.PublishErrors,
		m.SQLiteCommitDur,
		m.WSClients,
		m.WSBroadcastsDropped,
		m.BroadcastLag,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool `json:"redis_connected"`
	SQLiteOK       bool `json:"sqlite_ok"`
	WatcherOK      bool `json:"watcher_ok"`

	// lastFetch[instrument key] → time of the last successful fetch
	lastFetch map[string]time.Time

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// StaleAfter marks an instrument stale when its last fetch is older.
	StaleAfter time.Duration `json:"-"`

	redisRequired bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(staleAfter time.Duration, redisRequired bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		StaleAfter:    staleAfter,
		lastFetch:     make(map[string]time.Time),
		redisRequired: redisRequired,
	}
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWatcherOK(v bool) {
	h.mu.Lock()
	h.WatcherOK = v
	h.mu.Unlock()
}

// MarkFetched records a successful fetch for an instrument key.
func (h *HealthStatus) MarkFetched(key string, t time.Time) {
	h.mu.Lock()
	h.lastFetch[key] = t
	h.mu.Unlock()
}

// Stale returns the instrument keys whose last fetch is older than
// StaleAfter, sorted.
func (h *HealthStatus) Stale(now time.Time) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.staleLocked(now)
}

func (h *HealthStatus) staleLocked(now time.Time) []string {
	var out []string
	for k, t := range h.lastFetch {
		if h.StaleAfter > 0 && now.Sub(t) > h.StaleAfter {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// Report is the /healthz body.
type Report struct {
	Status          string   `json:"status"`
	Uptime          string   `json:"uptime"`
	RedisConnected  bool     `json:"redis_connected"`
	RedisLatencyMs  float64  `json:"redis_latency_ms"`
	SQLiteOK        bool     `json:"sqlite_ok"`
	SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
	WatcherOK       bool     `json:"watcher_ok"`
	Instruments     int      `json:"instruments"`
	Stale           []string `json:"stale,omitempty"`
	LastCheckAt     string   `json:"last_check_at"`
}

// Snapshot builds a health report and the HTTP status that goes with it.
func (h *HealthStatus) Snapshot(now time.Time) (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	// Determine overall status
	overallStatus := "healthy"
	httpCode := http.StatusOK

	stale := h.staleLocked(now)
	redisDown := h.redisRequired && !h.RedisConnected
	if !h.WatcherOK || !h.SQLiteOK || redisDown || len(stale) > 0 {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.WatcherOK && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	return Report{
		Status:          overallStatus,
		Uptime:          now.Sub(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		WatcherOK:       h.WatcherOK,
		Instruments:     len(h.lastFetch),
		Stale:           stale,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, httpCode := h.Snapshot(time.Now())

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
