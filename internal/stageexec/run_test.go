package stageexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"claimlens/internal/config"
	"claimlens/internal/services"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		CallTimeout: time.Second,
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
	}
}

func TestRunRetriesTransientFailures(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), fastPolicy(3), nil, "transcribe", func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return services.Wrap(services.ErrTransient, "transcribe", "transcribe", "backend unavailable", errors.New("503"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunDoesNotRetryPermanentFailures(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), fastPolicy(5), nil, "extract_claims", func(ctx context.Context) error {
		attempts++
		return services.Wrap(services.ErrPermanent, "extract_claims", "extract", "malformed response", errors.New("bad json"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
	if services.Classify(err) != services.KindPermanent {
		t.Fatalf("expected permanent classification, got %v", services.Classify(err))
	}
}

func TestRunStopsAtAttemptCap(t *testing.T) {
	attempts := 0
	err := Run(context.Background(), fastPolicy(3), nil, "fact_check", func(ctx context.Context) error {
		attempts++
		return services.Wrap(services.ErrTransient, "fact_check", "verify", "timeout", errors.New("slow"))
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if !services.IsRetryable(err) {
		t.Fatal("exhausted transient error should keep its transient classification")
	}
}

func TestRunAppliesCallTimeoutPerAttempt(t *testing.T) {
	policy := fastPolicy(2)
	policy.CallTimeout = 10 * time.Millisecond
	attempts := 0
	err := Run(context.Background(), policy, nil, "diarize", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 2 {
		t.Fatalf("expected timeout to be retried once, got %d attempts", attempts)
	}
}

func TestRunHonorsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Run(ctx, fastPolicy(5), nil, "transcribe", func(ctx context.Context) error {
		attempts++
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected no retry after parent cancellation, got %d attempts", attempts)
	}
	if services.Classify(err) != services.KindCancelled {
		t.Fatalf("expected cancelled classification, got %v", services.Classify(err))
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	policy := FromConfig(&cfg)
	if policy.CallTimeout != 60*time.Second {
		t.Fatalf("unexpected call timeout %v", policy.CallTimeout)
	}
	if policy.MaxAttempts != 3 {
		t.Fatalf("unexpected max attempts %d", policy.MaxAttempts)
	}
	if policy.BaseDelay != 500*time.Millisecond {
		t.Fatalf("unexpected base delay %v", policy.BaseDelay)
	}
	if policy.MaxDelay != 8*time.Second {
		t.Fatalf("unexpected max delay %v", policy.MaxDelay)
	}
}
