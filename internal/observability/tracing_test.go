package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	orig := Tracer
	Tracer = tp.Tracer("test")
	t.Cleanup(func() {
		Tracer = orig
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "quill-test"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTracingWithoutExporter(t *testing.T) {
	orig := Tracer
	t.Cleanup(func() { Tracer = orig })

	shutdown, err := InitTracing(TracingConfig{ServiceName: "quill-test", Enabled: true, Exporter: "none", SamplerRatio: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	ctx, _ := Tracer.Start(context.Background(), "probe")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
}

func TestInitTracingUnknownExporter(t *testing.T) {
	_, err := InitTracing(TracingConfig{ServiceName: "quill-test", Enabled: true, Exporter: "kafka"})
	assert.Error(t, err)
}

func TestNewSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), newSampler(1).Description())
	assert.Contains(t, newSampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestSpanOkWithoutError(t *testing.T) {
	rec := useRecorder(t)

	span, _ := NewSpan(context.Background(), "reaction.set_emoji")
	span.SetError(nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "Ok", ended[0].Status().Code.String())
}

func TestSpanRecordsErrorAndAttributes(t *testing.T) {
	rec := useRecorder(t)

	span, ctx := NewSpan(context.Background(), "reaction.toggle_like", attribute.Int("post.id", 3))
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	span.AddAttributes(attribute.Bool("liked", true))
	span.SetError(errors.New("boom"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "reaction.toggle_like", ended[0].Name())
	assert.Equal(t, "Error", ended[0].Status().Code.String())
	assert.Contains(t, ended[0].Attributes(), attribute.Int("post.id", 3))
	assert.Contains(t, ended[0].Attributes(), attribute.Bool("liked", true))
}

func TestTraceIDFromContextEmpty(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}

func TestRepoLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewRepoLogger("likes").WithLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	l.LogCreate(context.Background(), map[string]any{"post_id": 1})
	l.LogError(context.Background(), errors.New("fail"), "add_like")
	l.LogError(context.Background(), nil, "ignored")

	out := buf.String()
	assert.Contains(t, out, `"table":"likes"`)
	assert.Contains(t, out, `"operation":"create"`)
	assert.Contains(t, out, `"error":"fail"`)
	assert.NotContains(t, out, "ignored")
}
