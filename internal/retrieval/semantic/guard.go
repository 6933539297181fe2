package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/resilience"
)

// Guarded wraps an Embedder with a per-call timeout and a circuit breaker
// so an unreachable endpoint fails fast instead of stalling every search.
// Only errors resilience.Retryable classifies as transient count against
// the breaker unless cfg.IsFailure says otherwise.
type Guarded struct {
	inner   Embedder
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

func NewGuarded(inner Embedder, timeout time.Duration, cfg resilience.CircuitBreakerConfig) *Guarded {
	if cfg.IsFailure == nil {
		cfg.IsFailure = resilience.Retryable
	}
	return &Guarded{
		inner:   inner,
		breaker: resilience.NewCircuitBreaker("embedder", cfg),
		timeout: timeout,
	}
}

func (g *Guarded) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return call(g, ctx, "embed-passages", func(ctx context.Context) ([][]float32, error) {
		return g.inner.EmbedTexts(ctx, texts)
	})
}

func (g *Guarded) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return call(g, ctx, "embed-query", func(ctx context.Context) ([]float32, error) {
		return g.inner.EmbedQuery(ctx, text)
	})
}

// State reports the breaker state for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.GetState()
}

// call runs fn through the breaker under g.timeout. fn may outlive the
// timeout, so its result travels through a buffered channel rather than a
// shared variable.
func call[T any](g *Guarded, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		v   T
		err error
	}
	var result T
	err := g.breaker.Execute(func() error {
		if g.timeout <= 0 {
			v, err := fn(ctx)
			result = v
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		done := make(chan outcome, 1)
		go func() {
			v, err := fn(callCtx)
			done <- outcome{v, err}
		}()
		select {
		case o := <-done:
			result = o.v
			return o.err
		case <-callCtx.Done():
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", op, ctx.Err())
			}
			return fmt.Errorf("%s: %w (limit: %v)", op, context.DeadlineExceeded, g.timeout)
		}
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
