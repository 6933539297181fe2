// Package tracing provides lightweight spans that propagate through
// contexts. Spans form parent-child trees and are emitted through slog at
// debug level once the root ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/logger"
)

type contextKey struct{}

// Span represents a timed operation within a trace. A nil *Span is valid
// and ignores every call.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	mu    sync.Mutex
	ended bool
}

// Start opens a span. When ctx already carries a span the new one becomes
// its child; otherwise it is a root whose trace ID is the request ID, or a
// fresh UUID outside a request.
func Start(ctx context.Context, name string) (context.Context, *Span) {
	span := &Span{
		Name:      name,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
	if parent := FromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, span)
		parent.mu.Unlock()
	} else if id := logger.RequestID(ctx); id != "" {
		span.TraceID = id
	} else {
		span.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, contextKey{}, span), span
}

// FromContext returns the current span, or nil if none.
func FromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(contextKey{}).(*Span)
	return span
}

// End records the duration. Only the first call counts.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Phases returns the duration of each direct child by name.
func (s *Span) Phases() map[string]time.Duration {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	phases := make(map[string]time.Duration, len(children))
	for _, child := range children {
		child.mu.Lock()
		phases[child.Name] += child.Duration
		child.mu.Unlock()
	}
	return phases
}

// Log writes the span tree to l at debug level.
func (s *Span) Log(l *slog.Logger) {
	if s == nil || !l.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	s.log(l, 0)
}

func (s *Span) log(l *slog.Logger, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	l.Debug("span", attrs...)
	for _, child := range children {
		child.log(l, depth+1)
	}
}
