package stats

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry optionally mirrors the JSON EXPLAIN tree's counters through
// go.opentelemetry.io/otel/metric and wraps one query's execution in an
// otel/trace span, so a host process that wires a real TracerProvider/
// MeterProvider gets standard OTel telemetry for free (SPEC_FULL.md C8).
// This is additive: the JSON EXPLAIN tree is produced the same way whether
// or not Telemetry is used. The zero value is a safe no-op.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter

	resultCounter metric.Int64Counter
}

// StartQuery opens a span named name if a Tracer is configured, otherwise
// returns ctx unchanged with a no-op span.
func (t *Telemetry) StartQuery(ctx context.Context, name string) (context.Context, trace.Span) {
	if t == nil || t.Tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.Tracer.Start(ctx, name)
}

// Observe walks root's finalized tree, recording one counter increment per
// node labeled by its EXPLAIN name. Call after the query iterator has been
// fully drained and Close()d, once every Node.Count is non-nil.
func (t *Telemetry) Observe(ctx context.Context, root *Node) {
	if t == nil || t.Meter == nil || root.Count == nil {
		return
	}
	if t.resultCounter == nil {
		c, err := t.Meter.Int64Counter(
			"sparql.plan.node.results",
			metric.WithDescription("rows yielded by one SPARQL plan node"),
		)
		if err != nil {
			return
		}
		t.resultCounter = c
	}
	t.resultCounter.Add(ctx, *root.Count, metric.WithAttributes(attribute.String("node", root.Name)))
	for _, child := range root.Children {
		t.Observe(ctx, child)
	}
}
