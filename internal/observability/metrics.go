package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	types "github.com/yungbote/homeswap-backend/internal/domain"
	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op, so
// components take it as an optional dependency.
type Metrics struct {
	matchesCreated *CounterVec
	seekerOutcome  *CounterVec
	formation      *HistogramVec
	sweep          *HistogramVec
	jobRuns        *HistogramVec
	aggregateOps   *HistogramVec
	aggregateConfl *CounterVec
	aggregateRetry *CounterVec
	queueDepth     *GaugeVec
	pgStats        *GaugeVec
	redisUp        *Gauge
	redisPing      *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool { return envutil.Bool("METRICS_ENABLED", false) }

func Current() *Metrics { return instance }

func scrapeInterval() time.Duration {
	d := envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 10)
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Init returns the process-wide registry, or nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("metrics enabled")
		}
	})
	return instance
}

// New builds an unregistered Metrics, for tests and embedding.
func New() *Metrics {
	latency := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	return &Metrics{
		matchesCreated: NewCounterVec("hs_matches_created_total", "Match rows created by type.", []string{"type"}),
		seekerOutcome:  NewCounterVec("hs_seekers_processed_total", "Seekers processed by outcome.", []string{"outcome"}),
		formation: NewHistogramVec("hs_match_formation_duration_seconds",
			"Formation transaction latency by type and status.", []string{"type", "status"}, latency),
		sweep: NewHistogramVec("hs_sweep_duration_seconds",
			"Enqueue, sweep and maintenance latency by kind and status.", []string{"kind", "status"},
			[]float64{0.1, 0.5, 1, 5, 15, 60, 300, 900}),
		jobRuns: NewHistogramVec("hs_match_job_duration_seconds",
			"Match job handling latency by final status.", []string{"status"}, latency),
		aggregateOps: NewHistogramVec("hs_aggregate_operation_duration_seconds",
			"Aggregate write latency by operation and status.", []string{"operation", "status"}, latency),
		aggregateConfl: NewCounterVec("hs_aggregate_conflicts_total", "Aggregate writes that ended in a conflict.", []string{"operation"}),
		aggregateRetry: NewCounterVec("hs_aggregate_retryable_total", "Aggregate writes that ended retryable.", []string{"operation"}),
		queueDepth:     NewGaugeVec("hs_match_job_queue_depth", "Match jobs by status.", []string{"status"}),
		pgStats:        NewGaugeVec("hs_db_pool", "Database pool statistics.", []string{"stat"}),
		redisUp:        NewGauge("hs_redis_up", "1 when the last redis ping succeeded."),
		redisPing:      NewGauge("hs_redis_ping_seconds", "Last redis ping latency."),
	}
}

func (m *Metrics) IncMatchesCreated(matchType string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.matchesCreated.Add(float64(rows), normLabel(matchType))
}

func (m *Metrics) IncSeekerOutcome(outcome string) {
	if m == nil {
		return
	}
	m.seekerOutcome.Inc(normLabel(outcome))
}

func (m *Metrics) ObserveFormation(matchType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.formation.Observe(dur.Seconds(), normLabel(matchType), normLabel(status))
}

func (m *Metrics) ObserveSweep(kind, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.sweep.Observe(dur.Seconds(), normLabel(kind), normLabel(status))
}

func (m *Metrics) ObserveJob(status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.Observe(dur.Seconds(), normLabel(status))
}

func (m *Metrics) ObserveAggregateOperation(operation, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.aggregateOps.Observe(dur.Seconds(), normLabel(operation), normLabel(status))
}

func (m *Metrics) IncAggregateConflict(operation string) {
	if m == nil {
		return
	}
	m.aggregateConfl.Inc(normLabel(operation))
}

func (m *Metrics) IncAggregateRetry(operation string) {
	if m == nil {
		return
	}
	m.aggregateRetry.Inc(normLabel(operation))
}

func normLabel(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []interface{ WritePrometheus(io.Writer) error }{
		m.matchesCreated, m.seekerOutcome, m.formation, m.sweep, m.jobRuns,
		m.aggregateOps, m.aggregateConfl, m.aggregateRetry,
		m.queueDepth, m.pgStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.pgStats.Set(float64(stats.OpenConnections), "open_connections")
				m.pgStats.Set(float64(stats.InUse), "in_use")
				m.pgStats.Set(float64(stats.Idle), "idle")
				m.pgStats.Set(float64(stats.WaitCount), "wait_count")
				m.pgStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
				m.pgStats.Set(float64(stats.MaxOpenConnections), "max_open_connections")
			}
		}
	}()
}

// StartRedisCollector pings the given client on each scrape.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.Cmdable) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// QueueCounter reports match jobs by status.
type QueueCounter func(ctx context.Context) (map[string]int64, error)

func (m *Metrics) StartJobQueueCollector(ctx context.Context, log *logger.Logger, count QueueCounter) {
	if m == nil || count == nil {
		return
	}
	interval := scrapeInterval()
	statuses := []string{types.MatchJobQueued, types.MatchJobRunning, types.MatchJobSucceeded, types.MatchJobFailed, types.MatchJobDead}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.collectQueueDepth(ctx, log, count, statuses)
			}
		}
	}()
}

func (m *Metrics) collectQueueDepth(ctx context.Context, log *logger.Logger, count QueueCounter, statuses []string) {
	rows, err := count(ctx)
	if err != nil {
		if log != nil {
			log.Warn("metrics: match job queue depth query failed", "error", err)
		}
		return
	}
	for _, s := range statuses {
		m.queueDepth.Set(float64(rows[s]), s)
	}
	for s, n := range rows {
		m.queueDepth.Set(float64(n), normLabel(s))
	}
}
