package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	failing := func() error { return errors.New("boom") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), failing); err == nil {
			t.Fatalf("Call %d: expected error", i)
		}
	}

	if cb.GetState() != StateOpen {
		t.Errorf("Expected state %v, got %v", StateOpen, cb.GetState())
	}

	called := false
	err := cb.Execute(context.Background(), func() error {
		called = true
		return nil
	})
	if err != ErrCircuitOpen {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected function not to run while circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenClosesOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	if err := cb.Execute(context.Background(), func() error { return errors.New("boom") }); err == nil {
		t.Fatal("Expected error")
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state %v, got %v", StateOpen, cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Expected success after reset timeout, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state %v, got %v", StateClosed, cb.GetState())
	}
}

func TestCircuitBreaker_CancelledContextIsNotAFailure(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	for i := 0; i < 5; i++ {
		err := cb.Execute(ctx, func() error {
			called = true
			return nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Call %d: expected context.Canceled, got %v", i, err)
		}
	}

	if called {
		t.Error("Expected function not to run with a cancelled context")
	}

	// Cancellation must not trip the breaker: the next healthy call goes
	// straight through.
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state %v, got %v", StateClosed, cb.GetState())
	}
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Expected success on live context, got %v", err)
	}
}
