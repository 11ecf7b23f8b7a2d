package jobs

import (
	"fmt"
	"os"
	"time"

	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
)

// Config drives the match job worker pool and the in-process scheduler.
type Config struct {
	// WorkerID prefixes the ids each pool goroutine writes into claimed jobs.
	WorkerID    string
	Concurrency int
	MaxAttempts int
	// RetryBase is the delay before the first retry; it doubles per attempt up to RetryMax.
	RetryBase time.Duration
	RetryMax  time.Duration
	// StaleRunning is how long a running job may go without a heartbeat before
	// another worker reclaims it.
	StaleRunning      time.Duration
	HeartbeatInterval time.Duration
	PollInterval      time.Duration

	// Zero disables the loop.
	EnqueueInterval     time.Duration
	MaintenanceInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		WorkerID:            defaultWorkerID(),
		Concurrency:         4,
		MaxAttempts:         5,
		RetryBase:           30 * time.Second,
		RetryMax:            30 * time.Minute,
		StaleRunning:        5 * time.Minute,
		HeartbeatInterval:   15 * time.Second,
		PollInterval:        time.Second,
		EnqueueInterval:     5 * time.Minute,
		MaintenanceInterval: time.Hour,
	}
}

func ConfigFromEnv() Config {
	d := DefaultConfig()
	cfg := Config{
		WorkerID:            envutil.String("WORKER_ID", d.WorkerID),
		Concurrency:         envutil.Int("WORKER_CONCURRENCY", d.Concurrency),
		MaxAttempts:         envutil.Int("MATCH_JOB_MAX_ATTEMPTS", d.MaxAttempts),
		RetryBase:           envutil.Seconds("MATCH_JOB_RETRY_BASE_SECONDS", int(d.RetryBase/time.Second)),
		RetryMax:            envutil.Seconds("MATCH_JOB_RETRY_MAX_SECONDS", int(d.RetryMax/time.Second)),
		StaleRunning:        envutil.Seconds("MATCH_JOB_STALE_SECONDS", int(d.StaleRunning/time.Second)),
		HeartbeatInterval:   envutil.Seconds("MATCH_JOB_HEARTBEAT_SECONDS", int(d.HeartbeatInterval/time.Second)),
		PollInterval:        time.Duration(envutil.Int("WORKER_POLL_MS", int(d.PollInterval/time.Millisecond))) * time.Millisecond,
		EnqueueInterval:     envutil.Seconds("ENQUEUE_INTERVAL_SECONDS", int(d.EnqueueInterval/time.Second)),
		MaintenanceInterval: envutil.Seconds("MAINTENANCE_INTERVAL_SECONDS", int(d.MaintenanceInterval/time.Second)),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.WorkerID == "" {
		c.WorkerID = d.WorkerID
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryMax < c.RetryBase {
		c.RetryMax = c.RetryBase
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = d.StaleRunning
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}

// Backoff is the delay before retrying a job that has been attempted n times.
func (c Config) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.RetryBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.RetryMax {
			return c.RetryMax
		}
	}
	if d > c.RetryMax {
		return c.RetryMax
	}
	return d
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "matcher"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
