package matching

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
)

// Config is everything the engine reads. It is passed to NewEngine; nothing
// in this package consults the environment on its own.
type Config struct {
	// Debug traces every compatibility step of every pair.
	Debug bool
	// TracePairs traces only the listed unordered intent pairs.
	TracePairs []TracePair

	DateToleranceDays int
	MaxCandidates     int
	// GeoPrefilter narrows candidate selection to geohash cells covering the
	// seeker's zones. Ignored in Debug mode so ZONE rejections stay visible.
	GeoPrefilter bool

	TriangleEnabled bool
	TriangleFanout  int

	SweepConcurrency int
	TxTimeout        time.Duration
	LockTimeout      time.Duration
	ClaimLease       time.Duration
	ResweepInterval  time.Duration
	EnqueueBatch     int

	ArchiveAfter time.Duration
	JobRetention time.Duration
}

func DefaultConfig() Config {
	return Config{
		DateToleranceDays: 3,
		MaxCandidates:     200,
		GeoPrefilter:      true,
		TriangleEnabled:   true,
		TriangleFanout:    50,
		SweepConcurrency:  4,
		TxTimeout:         10 * time.Second,
		LockTimeout:       3 * time.Second,
		ClaimLease:        time.Minute,
		ResweepInterval:   24 * time.Hour,
		EnqueueBatch:      5000,
		ArchiveAfter:      30 * 24 * time.Hour,
		JobRetention:      7 * 24 * time.Hour,
	}
}

// TracePair is an unordered pair of intent ids.
type TracePair [2]uuid.UUID

func (p TracePair) Has(a, b uuid.UUID) bool {
	return (p[0] == a && p[1] == b) || (p[0] == b && p[1] == a)
}

// Traces reports whether steps between a and b should be recorded.
func (c Config) Traces(a, b uuid.UUID) bool {
	if c.Debug {
		return true
	}
	for _, p := range c.TracePairs {
		if p.Has(a, b) {
			return true
		}
	}
	return false
}

// ParseTracePairs reads "a:b,c:d".
func ParseTracePairs(raw string) ([]TracePair, error) {
	var out []TracePair
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ids := strings.Split(part, ":")
		if len(ids) != 2 {
			return nil, fmt.Errorf("trace pair %q: want <intent>:<intent>", part)
		}
		a, err := uuid.Parse(strings.TrimSpace(ids[0]))
		if err != nil {
			return nil, fmt.Errorf("trace pair %q: %w", part, err)
		}
		b, err := uuid.Parse(strings.TrimSpace(ids[1]))
		if err != nil {
			return nil, fmt.Errorf("trace pair %q: %w", part, err)
		}
		out = append(out, TracePair{a, b})
	}
	return out, nil
}

// ConfigFromEnv builds a Config from MATCHING_* variables, overlaid by the
// YAML file named in MATCHING_CONFIG_FILE when set.
func ConfigFromEnv() (Config, error) {
	d := DefaultConfig()
	cfg := Config{
		Debug:             envutil.Bool("MATCHING_DEBUG", d.Debug),
		DateToleranceDays: envutil.Int("MATCHING_DATE_TOLERANCE_DAYS", d.DateToleranceDays),
		MaxCandidates:     envutil.Int("MATCHING_MAX_CANDIDATES", d.MaxCandidates),
		GeoPrefilter:      envutil.Bool("MATCHING_GEO_PREFILTER", d.GeoPrefilter),
		TriangleEnabled:   envutil.Bool("MATCHING_TRIANGLE_ENABLED", d.TriangleEnabled),
		TriangleFanout:    envutil.Int("MATCHING_TRIANGLE_FANOUT", d.TriangleFanout),
		SweepConcurrency:  envutil.Int("MATCHING_SWEEP_CONCURRENCY", d.SweepConcurrency),
		TxTimeout:         envutil.Seconds("MATCHING_TX_TIMEOUT_SECONDS", int(d.TxTimeout/time.Second)),
		LockTimeout:       envutil.Seconds("MATCHING_LOCK_TIMEOUT_SECONDS", int(d.LockTimeout/time.Second)),
		ClaimLease:        envutil.Seconds("MATCHING_CLAIM_LEASE_SECONDS", int(d.ClaimLease/time.Second)),
		ResweepInterval:   time.Duration(envutil.Int("RESWEEP_INTERVAL_MINUTES", int(d.ResweepInterval/time.Minute))) * time.Minute,
		EnqueueBatch:      envutil.Int("MATCHING_ENQUEUE_BATCH", d.EnqueueBatch),
		ArchiveAfter:      time.Duration(envutil.Int("MATCH_ARCHIVE_AFTER_DAYS", int(d.ArchiveAfter/(24*time.Hour)))) * 24 * time.Hour,
		JobRetention:      time.Duration(envutil.Int("MATCH_JOB_RETENTION_DAYS", int(d.JobRetention/(24*time.Hour)))) * 24 * time.Hour,
	}
	pairs, err := ParseTracePairs(envutil.String("MATCHING_TRACE_PAIRS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.TracePairs = pairs

	if path := envutil.String("MATCHING_CONFIG_FILE", ""); path != "" {
		if cfg, err = LoadConfigFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg.normalized(), nil
}

type fileConfig struct {
	Debug             *bool    `yaml:"debug"`
	TracePairs        []string `yaml:"trace_pairs"`
	DateToleranceDays *int     `yaml:"date_tolerance_days"`
	MaxCandidates     *int     `yaml:"max_candidates"`
	GeoPrefilter      *bool    `yaml:"geo_prefilter"`
	TriangleEnabled   *bool    `yaml:"triangle_enabled"`
	TriangleFanout    *int     `yaml:"triangle_fanout"`
	SweepConcurrency  *int     `yaml:"sweep_concurrency"`
	TxTimeout         string   `yaml:"tx_timeout"`
	LockTimeout       string   `yaml:"lock_timeout"`
	ClaimLease        string   `yaml:"claim_lease"`
	ResweepInterval   string   `yaml:"resweep_interval"`
	EnqueueBatch      *int     `yaml:"enqueue_batch"`
	ArchiveAfter      string   `yaml:"archive_after"`
	JobRetention      string   `yaml:"job_retention"`
}

// LoadConfigFile overlays the fields present in a YAML file onto base.
// Durations use Go syntax ("90s", "24h").
func LoadConfigFile(path string, base Config) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read matching config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return base, fmt.Errorf("parse matching config: %w", err)
	}

	cfg := base
	setBool(&cfg.Debug, fc.Debug)
	setBool(&cfg.GeoPrefilter, fc.GeoPrefilter)
	setBool(&cfg.TriangleEnabled, fc.TriangleEnabled)
	setInt(&cfg.DateToleranceDays, fc.DateToleranceDays)
	setInt(&cfg.MaxCandidates, fc.MaxCandidates)
	setInt(&cfg.TriangleFanout, fc.TriangleFanout)
	setInt(&cfg.SweepConcurrency, fc.SweepConcurrency)
	setInt(&cfg.EnqueueBatch, fc.EnqueueBatch)
	if len(fc.TracePairs) > 0 {
		pairs, err := ParseTracePairs(strings.Join(fc.TracePairs, ","))
		if err != nil {
			return base, err
		}
		cfg.TracePairs = append(cfg.TracePairs, pairs...)
	}
	for _, d := range []struct {
		raw string
		dst *time.Duration
	}{
		{fc.TxTimeout, &cfg.TxTimeout},
		{fc.LockTimeout, &cfg.LockTimeout},
		{fc.ClaimLease, &cfg.ClaimLease},
		{fc.ResweepInterval, &cfg.ResweepInterval},
		{fc.ArchiveAfter, &cfg.ArchiveAfter},
		{fc.JobRetention, &cfg.JobRetention},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return base, fmt.Errorf("parse matching config duration %q: %w", d.raw, err)
		}
		*d.dst = v
	}
	return cfg.normalized(), nil
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.DateToleranceDays < 0 {
		c.DateToleranceDays = 0
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = d.MaxCandidates
	}
	if c.TriangleFanout <= 0 {
		c.TriangleFanout = d.TriangleFanout
	}
	if c.SweepConcurrency <= 0 {
		c.SweepConcurrency = 1
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = d.ClaimLease
	}
	if c.EnqueueBatch <= 0 {
		c.EnqueueBatch = d.EnqueueBatch
	}
	return c
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
