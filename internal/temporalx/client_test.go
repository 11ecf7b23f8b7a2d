package temporalx

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClampBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{10, 2 * time.Second},
	}
	for _, tc := range cases {
		if got := ClampBackoff(250*time.Millisecond, 2*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt=%d want=%s got=%s", tc.attempt, tc.want, got)
		}
	}
	if got := ClampBackoff(0, 0, 1); got != 250*time.Millisecond {
		t.Fatalf("zero base must default, got %s", got)
	}
}

func TestIsRetryableRPC(t *testing.T) {
	if !isRetryableRPC(status.Error(codes.Unavailable, "down")) {
		t.Fatalf("unavailable must be retryable")
	}
	if isRetryableRPC(status.Error(codes.PermissionDenied, "no")) {
		t.Fatalf("permission denied must not be retryable")
	}
	if !isRetryableRPC(context.DeadlineExceeded) || isRetryableRPC(errors.New("x")) || isRetryableRPC(nil) {
		t.Fatalf("plain error classification is wrong")
	}
}

func TestLoadConfigDisabledWithoutAddress(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_SWEEP_MAX_TICKS", "20")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("empty address must disable temporal")
	}
	if cfg.Namespace != "homeswap" || cfg.MaxTicks != 20 || cfg.SweepWorkflowID == "" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	c, err := NewClient(nil, cfg)
	if err != nil || c != nil {
		t.Fatalf("disabled client: c=%v err=%v", c, err)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	b := Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, MaxWait: time.Second}
	calls := 0
	err := Retry(context.Background(), nil, "dial", b, nil, func(attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("unavailable")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("want success on third call, got calls=%d err=%v", calls, err)
	}
}

func TestRetryGivesUp(t *testing.T) {
	fatal := errors.New("permission denied")
	calls := 0
	err := Retry(context.Background(), nil, "ensure", Backoff{Base: time.Millisecond, MaxWait: time.Second},
		func(err error) bool { return !errors.Is(err, fatal) },
		func(int) error { calls++; return fatal })
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("non-retryable error must stop at once: calls=%d err=%v", calls, err)
	}

	calls = 0
	err = Retry(context.Background(), nil, "dial", Backoff{}, nil, func(int) error { calls++; return fatal })
	if !errors.Is(err, fatal) || calls != 1 {
		t.Fatalf("zero MaxWait means one try: calls=%d err=%v", calls, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Retry(ctx, nil, "dial", Backoff{Base: time.Hour, MaxWait: time.Hour}, nil, func(int) error { return fatal })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled ctx must end the wait, got %v", err)
	}
}

func TestLoadConfigReadsRetryBounds(t *testing.T) {
	t.Setenv("TEMPORAL_RETRY_BACKOFF_MS", "100")
	t.Setenv("TEMPORAL_RETRY_MAX_WAIT_SECONDS", "3")
	t.Setenv("TEMPORAL_NAMESPACE_RETENTION_DAYS", "900")
	cfg := LoadConfig()
	if cfg.Retry.Base != 100*time.Millisecond || cfg.Retry.MaxWait != 3*time.Second {
		t.Fatalf("retry bounds: %+v", cfg.Retry)
	}
	if cfg.NamespaceRetention != 7*24*time.Hour {
		t.Fatalf("out of range retention must fall back, got %s", cfg.NamespaceRetention)
	}
}
