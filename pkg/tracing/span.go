// Package tracing times the stages of an indexing run. A run opens one root
// span; each pipeline stage becomes a child span carrying its own attributes
// and error. The finished tree is emitted through slog, one record per span.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span is one timed operation. Fields are guarded by mu; read them through
// the accessor methods once other goroutines may hold the span.
type Span struct {
	name    string
	traceID string
	depth   int

	mu       sync.Mutex
	start    time.Time
	duration time.Duration
	ended    bool
	err      error
	attrs    map[string]any
	children []*Span
}

// StageTiming is the flattened timing of one span.
type StageTiming struct {
	Name     string        `json:"name"`
	Depth    int           `json:"depth"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}

func newSpan(name, traceID string, depth int) *Span {
	return &Span{name: name, traceID: traceID, depth: depth, start: time.Now(), attrs: map[string]any{}}
}

// StartSpan opens a root span. An empty traceID gets a random UUID.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	span := newSpan(name, traceID, 0)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan opens a span under the one carried by ctx. Without a parent
// it behaves like an untraced root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		span := newSpan(name, "", 0)
		return context.WithValue(ctx, spanKey{}, span), span
	}
	child := newSpan(name, parent.traceID, parent.depth+1)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

// Stage runs fn in a child span and records its error on the span.
func Stage(ctx context.Context, name string, fn func(ctx context.Context, span *Span) error) error {
	ctx, span := StartChildSpan(ctx, name)
	err := fn(ctx, span)
	span.Fail(err)
	span.End()
	return err
}

// SpanFromContext returns the span carried by ctx, or nil.
func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

// Name returns the span name.
func (s *Span) Name() string { return s.name }

// TraceID returns the trace the span belongs to.
func (s *Span) TraceID() string { return s.traceID }

// End fixes the span duration. Later calls are no-ops.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.duration = time.Since(s.start)
}

// Duration returns the recorded duration, or the time elapsed so far for an
// open span.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return time.Since(s.start)
	}
	return s.duration
}

// Fail records err on the span; nil leaves it unchanged.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the recorded error.
func (s *Span) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// SetAttr attaches an attribute, replacing any previous value for key.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.attrs[key] = value
	s.mu.Unlock()
}

// Attr returns the attribute stored under key.
func (s *Span) Attr(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Stages flattens the tree in depth-first start order.
func (s *Span) Stages() []StageTiming {
	var out []StageTiming
	s.walk(func(span *Span) {
		out = append(out, StageTiming{
			Name:     span.name,
			Depth:    span.depth,
			Duration: span.Duration(),
			Failed:   span.Err() != nil,
		})
	})
	return out
}

// Log emits one slog record per span, errors at error level.
func (s *Span) Log() {
	s.walk(func(span *Span) {
		attrs := span.logAttrs()
		if err := span.Err(); err != nil {
			slog.Error("span", append(attrs, "error", err)...)
			return
		}
		slog.Info("span", attrs...)
	})
}

func (s *Span) walk(visit func(*Span)) {
	visit(s)
	s.mu.Lock()
	children := append([]*Span(nil), s.children...)
	s.mu.Unlock()
	for _, child := range children {
		child.walk(visit)
	}
}

func (s *Span) logAttrs() []any {
	s.mu.Lock()
	keys := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]any, 0, 8+2*len(keys))
	attrs = append(attrs, "trace_id", s.traceID, "span", s.name, "depth", s.depth)
	for _, k := range keys {
		attrs = append(attrs, k, s.attrs[k])
	}
	s.mu.Unlock()
	return append(attrs, "duration_ms", s.Duration().Milliseconds())
}
