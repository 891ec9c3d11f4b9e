// Package trace provides lightweight, context-propagated tracing.
//
// Parent/child relationships flow through context.Context: StartSpan reads
// its parent from the passed context and returns a derived context carrying
// the new span. A span started from a context without a span becomes the
// root of a new trace. Span trees are reconstructable from the exported
// TraceID, SpanID and ParentID triple.
//
// # Quick Start
//
//	tracer := trace.NewTracer(func(o *trace.Options) {
//		o.Exporter = trace.NewLogExporter(logger)
//	})
//
//	ctx, span := tracer.StartSpan(ctx, "handle-request")
//	defer span.End()
//
//	span.SetTag("route", "/orders")
//	span.Logf("validated %d items", n)
package trace
