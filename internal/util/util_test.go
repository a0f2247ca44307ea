package util

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, Backoff{}, func(attempt int) error {
		attempts++
		if attempt != attempts {
			t.Errorf("attempt = %d, want %d", attempt, attempts)
		}
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := Retry(context.Background(), maxAttempts, Backoff{}, func(int) error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("Retry should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryCancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Retry(ctx, 5, Backoff{Kind: BackoffConstant, Base: time.Hour}, func(int) error {
		attempts++
		cancel()
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("Retry called fn %d times after cancel, want 1", attempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	lin := Backoff{Kind: BackoffLinear, Base: 100 * time.Millisecond}
	if got := lin.Delay(3); got != 300*time.Millisecond {
		t.Errorf("linear Delay(3) = %v, want 300ms", got)
	}

	exp := Backoff{Kind: BackoffExponential, Base: 100 * time.Millisecond}
	if got := exp.Delay(1); got != 100*time.Millisecond {
		t.Errorf("exponential Delay(1) = %v, want 100ms", got)
	}
	if got := exp.Delay(4); got != 800*time.Millisecond {
		t.Errorf("exponential Delay(4) = %v, want 800ms", got)
	}

	capped := Backoff{Kind: BackoffExponential, Base: time.Second, Max: 3 * time.Second}
	if got := capped.Delay(10); got != 3*time.Second {
		t.Errorf("capped Delay(10) = %v, want 3s", got)
	}

	constant := Backoff{Kind: BackoffConstant, Base: 50 * time.Millisecond}
	if got := constant.Delay(7); got != 50*time.Millisecond {
		t.Errorf("constant Delay(7) = %v, want 50ms", got)
	}

	if got := (Backoff{}).Delay(2); got != 0 {
		t.Errorf("zero Backoff Delay = %v, want 0", got)
	}
}

func TestAddJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := AddJitter(base, 0.5)
		if got < base || got >= base+base/2 {
			t.Fatalf("AddJitter = %v, want within [100ms, 150ms)", got)
		}
	}
	if got := AddJitter(base, 0); got != base {
		t.Errorf("AddJitter with zero fraction = %v, want %v", got, base)
	}
}

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait %d within burst: %v", i, err)
		}
	}
	if err := rl.Wait(ctx); err == nil {
		t.Error("fourth Wait should block past the context deadline")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn", "json")
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", out)
	}

	if ParseLevel("bogus") != slog.LevelInfo {
		t.Error("unknown level should default to info")
	}
}
