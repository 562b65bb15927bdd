// Package retry wraps a provider streaming call with exponential backoff,
// retrying only while no event has yet reached the caller.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/dohr-michael/ozzie/internal/classify"
	"github.com/dohr-michael/ozzie/internal/provider"
	"github.com/dohr-michael/ozzie/internal/telemetry"
)

// Config controls backoff timing and retry-event emission.
type Config struct {
	MaxRetries      int
	BaseDelayMs     int64
	MaxDelayMs      int64
	JitterFactor    float64
	EmitRetryEvents bool

	// Telemetry, when non-nil, receives a provider_retries_total{category}
	// increment for every retried attempt.
	Telemetry *telemetry.Recorder
}

// DefaultConfig mirrors the defaults used by the reference agent runtime.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		BaseDelayMs:     500,
		MaxDelayMs:      30_000,
		JitterFactor:    0.2,
		EmitRetryEvents: true,
	}
}

// StreamFactory opens a fresh provider stream for one attempt. It is called
// again for each retry, so it must not depend on state mutated by a prior
// attempt.
type StreamFactory func(ctx context.Context) (<-chan provider.StreamEvent, error)

// calculateBackoffDelay computes base*2^(attempt-1)*(1+jitter), capped at max.
// attempt is 1-indexed (the first retry is attempt 1).
func calculateBackoffDelay(attempt int, baseDelayMs, maxDelayMs int64, jitterFactor float64) int64 {
	exp := math.Pow(2, float64(attempt-1))
	jitter := 1 + jitterFactor*rand.Float64()
	delay := float64(baseDelayMs) * exp * jitter
	if delay > float64(maxDelayMs) {
		return maxDelayMs
	}
	return int64(delay)
}

// WithProviderRetry runs factory, retrying on retryable errors as long as no
// event has yet been yielded on the returned channel. Once any event is
// yielded, the attempt is committed: a subsequent error is forwarded as-is,
// never retried, since the caller may already have rendered partial output.
func WithProviderRetry(ctx context.Context, factory StreamFactory, cfg Config) <-chan provider.StreamEvent {
	out := make(chan provider.StreamEvent)

	go func() {
		defer close(out)

		attempt := 0
		for {
			hasYielded := false

			stream, err := factory(ctx)
			if err != nil {
				if !forwardTerminalError(ctx, out, err, &attempt, cfg, hasYielded) {
					return
				}
				continue
			}

			perr, yielded, stop := drain(ctx, out, stream, &hasYielded)
			if stop {
				return
			}
			// drain returned without stop only when a non-fatal-to-retry
			// error was seen; decide whether to retry or forward it.
			if !forwardTerminalError(ctx, out, perr, &attempt, cfg, yielded) {
				return
			}
		}
	}()

	return out
}

// drain forwards every event from stream to out. It returns the terminal
// error (if any), whether any event was yielded before the error, and
// whether the whole retry loop should stop (true on context cancellation, a
// clean Done, or when the stream simply closes).
func drain(ctx context.Context, out chan<- provider.StreamEvent, stream <-chan provider.StreamEvent, hasYielded *bool) (err error, yielded bool, stop bool) {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err(), *hasYielded, true
		case ev, open := <-stream:
			if !open {
				return nil, *hasYielded, true
			}
			if ev.Kind == provider.EventError && ev.Err != nil {
				return ev.Err, *hasYielded, false
			}
			select {
			case out <- ev:
				*hasYielded = true
			case <-ctx.Done():
				return ctx.Err(), *hasYielded, true
			}
			if ev.Kind == provider.EventDone {
				return nil, *hasYielded, true
			}
		}
	}
}

// forwardTerminalError decides whether to retry a non-yielded error: emits a
// Retry event (if enabled), sleeps with the computed/hinted delay, and
// returns true to continue the loop, or forwards the error and returns false
// when retries are exhausted, cancellation occurs, or the caller already saw
// output.
func forwardTerminalError(ctx context.Context, out chan<- provider.StreamEvent, err error, attempt *int, cfg Config, hasYielded bool) bool {
	if err == nil {
		return false
	}
	parsed := classify.Parse(err.Error())
	if hasYielded || !parsed.IsRetryable || *attempt >= cfg.MaxRetries {
		select {
		case out <- provider.StreamEvent{Kind: provider.EventError, Err: err}:
		case <-ctx.Done():
		}
		return false
	}

	*attempt++
	if cfg.Telemetry != nil {
		cfg.Telemetry.CounterInc("provider_retries_total", telemetry.Labels{"category": "api"}, 1)
	}
	backoffMs := calculateBackoffDelay(*attempt, cfg.BaseDelayMs, cfg.MaxDelayMs, cfg.JitterFactor)
	delayMs := backoffMs
	if ra, ok := retryAfterMs(err); ok && ra > delayMs {
		delayMs = ra
	}

	if cfg.EmitRetryEvents {
		select {
		case out <- provider.StreamEvent{
			Kind: provider.EventRetry,
			Retry: &provider.RetryInfo{
				Attempt:    *attempt,
				MaxRetries: cfg.MaxRetries,
				DelayMs:    delayMs,
				Error:      parsed,
			},
		}:
		case <-ctx.Done():
			return false
		}
	}

	select {
	case <-time.After(time.Duration(delayMs) * time.Millisecond):
		return true
	case <-ctx.Done():
		select {
		case out <- provider.StreamEvent{Kind: provider.EventError, Err: ctx.Err()}:
		default:
		}
		return false
	}
}

// retryAfterErr is implemented by provider errors that carry a server-hinted
// retry delay (e.g. a parsed Retry-After header).
type retryAfterErr interface {
	RetryAfterMs() (int64, bool)
}

func retryAfterMs(err error) (int64, bool) {
	if ra, ok := err.(retryAfterErr); ok {
		return ra.RetryAfterMs()
	}
	return 0, false
}
