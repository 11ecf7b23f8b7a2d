package temporalx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

// Backoff bounds a retry loop: the delay doubles from Base up to Max and the
// loop gives up once MaxWait has elapsed. MaxWait <= 0 means a single try.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	MaxWait time.Duration
}

// Retry calls fn until it succeeds, retryable rejects its error, ctx ends or
// b.MaxWait elapses. A nil retryable retries every error.
func Retry(ctx context.Context, log *logger.Logger, op string, b Backoff, retryable func(error) bool, fn func(attempt int) error) error {
	deadline := time.Now().Add(b.MaxWait)
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if log != nil && attempt > 1 {
				log.Info("Temporal call recovered", "op", op, "attempts", attempt)
			}
			return nil
		}
		if (retryable != nil && !retryable(err)) || b.MaxWait <= 0 || time.Now().After(deadline) {
			return err
		}
		if log != nil {
			log.Warn("Temporal call failed; retrying", "op", op, "attempt", attempt, "error", err)
		}
		timer := time.NewTimer(ClampBackoff(b.Base, b.Max, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w (last error: %v)", op, ctx.Err(), err)
		case <-timer.C:
		}
	}
}

// NewClient dials the configured frontend, retrying within cfg.Retry. It
// returns a nil client when TEMPORAL_ADDRESS is unset.
func NewClient(log *logger.Logger, cfg Config) (temporalsdkclient.Client, error) {
	if !cfg.Enabled() {
		if log != nil {
			log.Info("TEMPORAL_ADDRESS not set; using in-process scheduler")
		}
		return nil, nil
	}
	opts, err := cfg.clientOptions(log, true)
	if err != nil {
		return nil, err
	}

	var c temporalsdkclient.Client
	err = Retry(context.Background(), log, "dial", cfg.Retry, nil, func(int) error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
		defer cancel()
		var dialErr error
		c, dialErr = temporalsdkclient.DialContext(ctx, opts)
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("temporal dial failed (address=%s namespace=%s): %w", cfg.Address, cfg.Namespace, err)
	}
	return c, nil
}

// EnsureNamespace registers cfg.Namespace when it does not exist yet.
func EnsureNamespace(ctx context.Context, cfg Config, log *logger.Logger) error {
	if !cfg.Enabled() || cfg.Namespace == "" {
		return nil
	}
	// No namespace header: the namespace may not exist yet.
	opts, err := cfg.clientOptions(log, false)
	if err != nil {
		return err
	}
	nsClient, err := temporalsdkclient.NewNamespaceClient(opts)
	if err != nil {
		return fmt.Errorf("temporal namespace client: %w", err)
	}
	defer nsClient.Close()

	return Retry(ctx, log, "ensure_namespace", cfg.Retry, isRetryableRPC, func(int) error {
		_, err := nsClient.Describe(ctx, cfg.Namespace)
		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return err
		}
		err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
			Namespace:                        cfg.Namespace,
			Description:                      "homeswap matcher namespace",
			WorkflowExecutionRetentionPeriod: durationpb.New(cfg.NamespaceRetention),
		})
		var exists *serviceerror.NamespaceAlreadyExists
		if err == nil || errors.As(err, &exists) {
			if log != nil {
				log.Info("Temporal namespace ready", "namespace", cfg.Namespace, "retention", cfg.NamespaceRetention)
			}
			return nil
		}
		return err
	})
}

func (c Config) clientOptions(log *logger.Logger, namespaced bool) (temporalsdkclient.Options, error) {
	opts := temporalsdkclient.Options{HostPort: c.Address, Logger: log}
	if namespaced {
		opts.Namespace = c.Namespace
	}
	if c.tlsEnabled() {
		tlsCfg, err := loadTLSConfig(c)
		if err != nil {
			return opts, err
		}
		opts.ConnectionOptions.TLS = tlsCfg
	}
	return opts, nil
}

func loadTLSConfig(cfg Config) (*tls.Config, error) {
	if cfg.ClientCertPath == "" || cfg.ClientKeyPath == "" {
		return nil, fmt.Errorf("temporal tls: TEMPORAL_CLIENT_CERT_PATH and TEMPORAL_CLIENT_KEY_PATH are both required")
	}
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: %w", err)
	}
	tlsCfg := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	if cfg.ClientCAPath == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cfg.ClientCAPath)
	if err != nil {
		return nil, fmt.Errorf("temporal tls: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("temporal tls: no certificates in %s", cfg.ClientCAPath)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}

// ClampBackoff doubles base per attempt, capped at max.
func ClampBackoff(base time.Duration, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	sleep := base
	for i := 1; i < attempt; i++ {
		sleep *= 2
		if max > 0 && sleep >= max {
			return max
		}
	}
	if max > 0 && sleep > max {
		return max
	}
	return sleep
}

func isRetryableRPC(err error) bool {
	if err == nil {
		return false
	}
	s, ok := status.FromError(err)
	if !ok {
		return errors.Is(err, context.DeadlineExceeded)
	}
	switch s.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
