package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "index-run", "run-1")
	assert.Equal(t, "run-1", root.TraceID())
	assert.Same(t, root, SpanFromContext(ctx))

	err := Stage(ctx, "load-corpus", func(ctx context.Context, span *Span) error {
		span.SetAttr("documents", 3)
		return Stage(ctx, "parse", func(context.Context, *Span) error { return nil })
	})
	require.NoError(t, err)

	boom := errors.New("disk full")
	err = Stage(ctx, "snapshot", func(context.Context, *Span) error { return boom })
	assert.ErrorIs(t, err, boom)
	root.End()

	stages := root.Stages()
	require.Len(t, stages, 4)
	names := []string{stages[0].Name, stages[1].Name, stages[2].Name, stages[3].Name}
	assert.Equal(t, []string{"index-run", "load-corpus", "parse", "snapshot"}, names)
	assert.Equal(t, 2, stages[2].Depth)
	assert.True(t, stages[3].Failed)
	assert.False(t, stages[1].Failed)
	root.Log()
}

func TestSpanAccessors(t *testing.T) {
	_, span := StartSpan(context.Background(), "run", "")
	assert.NotEmpty(t, span.TraceID())

	span.SetAttr("pairs", 10)
	v, ok := span.Attr("pairs")
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	span.Fail(nil)
	assert.NoError(t, span.Err())

	span.End()
	d := span.Duration()
	span.End()
	assert.Equal(t, d, span.Duration())
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Empty(t, span.TraceID())
	assert.Nil(t, SpanFromContext(context.Background()))
}
