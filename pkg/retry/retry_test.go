package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxRetries != 3 {
		t.Errorf("expected MaxRetries=3, got %d", cfg.MaxRetries)
	}
	if cfg.InitialDelay != 100*time.Millisecond {
		t.Errorf("expected InitialDelay=100ms, got %v", cfg.InitialDelay)
	}
	if cfg.MaxDelay != 5*time.Second {
		t.Errorf("expected MaxDelay=5s, got %v", cfg.MaxDelay)
	}
	if cfg.Multiplier != 2.0 {
		t.Errorf("expected Multiplier=2.0, got %f", cfg.Multiplier)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		MaxRetries:   3,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
		Multiplier:   2.0,
	}

	callCount := 0
	err := Do(ctx, cfg, func() error {
		callCount++
		if callCount < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestDo_MaxRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}

	expectedErr := errors.New("persistent error")
	callCount := 0
	err := Do(ctx, cfg, func() error {
		callCount++
		return expectedErr
	})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected %v, got %v", expectedErr, err)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls (1 initial + 2 retries), got %d", callCount)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := &Config{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	callCount := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, cfg, func() error {
		callCount++
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", callCount)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("cancellation should interrupt the wait, took %v", time.Since(start))
	}
}

func TestDoWithResult_SuccessAfterRetries(t *testing.T) {
	cfg := &Config{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 2.0}

	callCount := 0
	result, err := DoWithResult(context.Background(), cfg, func() (string, error) {
		callCount++
		if callCount == 1 {
			return "", errors.New("timeout")
		}
		return "pool", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "pool" {
		t.Errorf("expected result 'pool', got %q", result)
	}
}

func TestConfig_DelayFor(t *testing.T) {
	cfg := &Config{InitialDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2.0}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := cfg.delayFor(i + 1); got != w {
			t.Errorf("delayFor(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("deadlock detected"), true},
		{errors.New("remote quota exceeded"), true},
		{errors.New("permission denied"), false},
		{errors.New("invalid input syntax"), false},
		{fmt.Errorf("wrapped: %w", explicitErr{retryable: false, msg: "connection refused"}), false},
		{explicitErr{retryable: true, msg: "custom"}, true},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type explicitErr struct {
	retryable bool
	msg       string
}

func (e explicitErr) Error() string     { return e.msg }
func (e explicitErr) IsRetryable() bool { return e.retryable }

var (
	errThrottled = errors.New("throttled")
	errFlaky     = errors.New("flaky")
	errDenied    = errors.New("denied")
)

func testPolicy(delays *[]time.Duration) *Policy {
	return &Policy{
		Transient: &Config{MaxRetries: 3, InitialDelay: time.Millisecond, Multiplier: 2},
		Throttled: &Config{MaxRetries: 5, InitialDelay: 2 * time.Millisecond, Multiplier: 2},
		Classify: func(err error) Class {
			switch {
			case errors.Is(err, errThrottled):
				return Throttled
			case errors.Is(err, errFlaky):
				return Transient
			default:
				return Permanent
			}
		},
		OnRetry: func(class Class, attempt int, delay time.Duration, err error) {
			if delays != nil {
				*delays = append(*delays, delay)
			}
		},
	}
}

func TestDoWithPolicy_PermanentFailsImmediately(t *testing.T) {
	calls := 0
	err := DoWithPolicy(context.Background(), testPolicy(nil), func() error {
		calls++
		return errDenied
	})

	if !errors.Is(err, errDenied) {
		t.Errorf("expected errDenied, got %v", err)
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		t.Error("permanent errors should not be reported as exhausted")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoWithPolicy_TransientBudget(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := DoWithPolicy(context.Background(), testPolicy(&delays), func() error {
		calls++
		return errFlaky
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Class != Transient || exhausted.Attempts != 3 {
		t.Errorf("unexpected exhaustion: %+v", exhausted)
	}
	if !errors.Is(err, errFlaky) {
		t.Error("exhausted error should wrap the last failure")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls (1 initial + 3 retries), got %d", calls)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if fmt.Sprint(delays) != fmt.Sprint(want) {
		t.Errorf("delays = %v, want %v", delays, want)
	}
}

func TestDoWithPolicy_ThrottledBudget(t *testing.T) {
	calls := 0
	err := DoWithPolicy(context.Background(), testPolicy(nil), func() error {
		calls++
		return errThrottled
	})

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Class != Throttled {
		t.Fatalf("expected throttled exhaustion, got %v", err)
	}
	if calls != 6 {
		t.Errorf("expected 6 calls (1 initial + 5 retries), got %d", calls)
	}
}

func TestDoWithPolicy_RecoversAcrossClasses(t *testing.T) {
	sequence := []error{errThrottled, errFlaky, errThrottled, nil}
	calls := 0
	err := DoWithPolicy(context.Background(), testPolicy(nil), func() error {
		err := sequence[calls]
		calls++
		return err
	})

	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDoWithPolicy_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := DoWithPolicy(ctx, testPolicy(nil), func() error {
		calls++
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no calls, got %d", calls)
	}
}
