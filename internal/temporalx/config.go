package temporalx

import (
	"time"

	"github.com/yungbote/homeswap-backend/internal/platform/envutil"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	// AutoRegisterNamespace creates Namespace on self-hosted frontends.
	AutoRegisterNamespace bool
	NamespaceRetention    time.Duration

	DialTimeout time.Duration
	// Retry bounds every wait on the frontend: dial, namespace and worker start.
	Retry Backoff

	// SweepWorkflowID is fixed so only one scheduled sweep runs per namespace.
	SweepWorkflowID  string
	SweepInterval    time.Duration
	MaintenanceEvery int
	MaxTicks         int
}

func LoadConfig() Config {
	retentionDays := envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7)
	if retentionDays < 1 || retentionDays > 365 {
		retentionDays = 7
	}
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", ""),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "homeswap"),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "homeswap-matcher"),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", ""),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", ""),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", ""),

		AutoRegisterNamespace: envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		NamespaceRetention:    time.Duration(retentionDays) * 24 * time.Hour,

		DialTimeout: envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		Retry: Backoff{
			Base:    millis("TEMPORAL_RETRY_BACKOFF_MS", 250),
			Max:     millis("TEMPORAL_RETRY_BACKOFF_MAX_MS", 5000),
			MaxWait: envutil.Seconds("TEMPORAL_RETRY_MAX_WAIT_SECONDS", 60),
		},

		SweepWorkflowID:  envutil.String("TEMPORAL_SWEEP_WORKFLOW_ID", "matching-sweep"),
		SweepInterval:    envutil.Seconds("ENQUEUE_INTERVAL_SECONDS", 300),
		MaintenanceEvery: envutil.Int("TEMPORAL_MAINTENANCE_EVERY_TICKS", 12),
		MaxTicks:         envutil.Int("TEMPORAL_SWEEP_MAX_TICKS", 500),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func millis(key string, def int) time.Duration {
	n := envutil.Int(key, def)
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * time.Millisecond
}
