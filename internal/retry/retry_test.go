package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dohr-michael/ozzie/internal/provider"
)

func drainAll(ch <-chan provider.StreamEvent) []provider.StreamEvent {
	var out []provider.StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseDelayMs = 1
	cfg.MaxDelayMs = 5
	cfg.JitterFactor = 0
	return cfg
}

func TestWithProviderRetry_SuccessNoRetry(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 2)
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: "hi"}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}

	events := drainAll(WithProviderRetry(context.Background(), factory, fastConfig()))

	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(events) != 2 || events[1].Kind != provider.EventDone {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestWithProviderRetry_SucceedsAfterFailures(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		n := atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 2)
		if n < 3 {
			out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("503 server error")}
			close(out)
			return out, nil
		}
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: "ok"}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}

	events := drainAll(WithProviderRetry(context.Background(), factory, fastConfig()))

	if calls != 3 {
		t.Errorf("expected 3 calls (2 failures + success), got %d", calls)
	}
	var sawRetry, sawDone int
	for _, ev := range events {
		if ev.Kind == provider.EventRetry {
			sawRetry++
		}
		if ev.Kind == provider.EventDone {
			sawDone++
		}
	}
	if sawRetry != 2 {
		t.Errorf("expected 2 retry events, got %d", sawRetry)
	}
	if sawDone != 1 {
		t.Errorf("expected a terminal Done event, got %d", sawDone)
	}
}

func TestWithProviderRetry_ExhaustsRetries(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 1)
		out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("500 internal server error")}
		close(out)
		return out, nil
	}

	cfg := fastConfig()
	cfg.MaxRetries = 2
	events := drainAll(WithProviderRetry(context.Background(), factory, cfg))

	if calls != 3 { // initial attempt + 2 retries
		t.Errorf("expected 3 calls, got %d", calls)
	}
	last := events[len(events)-1]
	if last.Kind != provider.EventError {
		t.Errorf("expected final event to be an error, got %s", last.Kind)
	}
}

func TestWithProviderRetry_NonRetryableShortCircuits(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 1)
		out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("401 unauthorized")}
		close(out)
		return out, nil
	}

	events := drainAll(WithProviderRetry(context.Background(), factory, fastConfig()))

	if calls != 1 {
		t.Errorf("expected exactly 1 call for a non-retryable error, got %d", calls)
	}
	if len(events) != 1 || events[0].Kind != provider.EventError {
		t.Errorf("unexpected events: %+v", events)
	}
}

func TestWithProviderRetry_NoRetryAfterYield(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 2)
		out <- provider.StreamEvent{Kind: provider.EventTextDelta, TextDelta: "partial"}
		out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("500 internal server error")}
		close(out)
		return out, nil
	}

	events := drainAll(WithProviderRetry(context.Background(), factory, fastConfig()))

	if calls != 1 {
		t.Errorf("expected exactly 1 call once output has been yielded, got %d", calls)
	}
	if len(events) != 2 {
		t.Fatalf("expected text delta then error, got %+v", events)
	}
	if events[1].Kind != provider.EventError {
		t.Errorf("expected forwarded error after yield, got %s", events[1].Kind)
	}
}

func TestWithProviderRetry_DisabledRetryEvents(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		n := atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 1)
		if n < 2 {
			out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("503 server error")}
			close(out)
			return out, nil
		}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}

	cfg := fastConfig()
	cfg.EmitRetryEvents = false
	events := drainAll(WithProviderRetry(context.Background(), factory, cfg))

	for _, ev := range events {
		if ev.Kind == provider.EventRetry {
			t.Error("expected no Retry events when EmitRetryEvents is false")
		}
	}
}

func TestWithProviderRetry_CancellationDuringSleep(t *testing.T) {
	var calls int32
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 1)
		out <- provider.StreamEvent{Kind: provider.EventError, Err: errors.New("503 server error")}
		close(out)
		return out, nil
	}

	cfg := DefaultConfig()
	cfg.BaseDelayMs = 10_000
	cfg.JitterFactor = 0

	ctx, cancel := context.WithCancel(context.Background())
	ch := WithProviderRetry(ctx, factory, cfg)

	done := make(chan []provider.StreamEvent, 1)
	go func() { done <- drainAll(ch) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case events := <-done:
		if len(events) == 0 {
			t.Fatal("expected at least one event after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for retry loop to unwind after cancellation")
	}
}

type retryAfterError struct{ ms int64 }

func (e retryAfterError) Error() string           { return "429 rate limit" }
func (e retryAfterError) RetryAfterMs() (int64, bool) { return e.ms, true }

func TestWithProviderRetry_RespectsRetryAfterHint(t *testing.T) {
	var calls int32
	var firstRetryDelay int64
	factory := func(ctx context.Context) (<-chan provider.StreamEvent, error) {
		n := atomic.AddInt32(&calls, 1)
		out := make(chan provider.StreamEvent, 1)
		if n < 2 {
			out <- provider.StreamEvent{Kind: provider.EventError, Err: retryAfterError{ms: 5000}}
			close(out)
			return out, nil
		}
		out <- provider.StreamEvent{Kind: provider.EventDone}
		close(out)
		return out, nil
	}

	cfg := fastConfig() // computed backoff would be ~1ms, far below the 5000ms hint
	for ev := range WithProviderRetry(context.Background(), factory, cfg) {
		if ev.Kind == provider.EventRetry {
			firstRetryDelay = ev.Retry.DelayMs
		}
	}

	if firstRetryDelay < 5000 {
		t.Errorf("expected delay to respect Retry-After hint (>=5000ms), got %d", firstRetryDelay)
	}
}
