package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffPolicy_Wait(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, BaseWait: time.Second, MaxWait: 8 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := p.wait(tt.attempt); got != tt.want {
			t.Errorf("wait(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoffPolicy_Retry_SucceedsAfterTransientFailures(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: 4 * time.Millisecond}
	attempts := 0
	err := p.retry(context.Background(), func(n int) error {
		attempts++
		if n < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("retry() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestBackoffPolicy_Retry_ExhaustsBudget(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 3, BaseWait: time.Millisecond, MaxWait: 4 * time.Millisecond}
	attempts := 0
	wantErr := errors.New("persistent")
	err := p.retry(context.Background(), func(int) error {
		attempts++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("retry() error = %v, want %v", err, wantErr)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestBackoffPolicy_Retry_ContextCancelled(t *testing.T) {
	p := BackoffPolicy{MaxAttempts: 5, BaseWait: time.Hour, MaxWait: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.retry(ctx, func(int) error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("retry() error = %v, want context.Canceled", err)
	}
}
