/*
Package tracing provides lightweight request tracing.

Each HTTP request gets a span carrying a trace id, continued from the
X-Trace-ID and X-Span-ID request headers when present and echoed in the
response. Finished spans are collected asynchronously, logged, and the most
recent ones are kept in a ring for the /metrics/traces endpoint.

# Usage

	tracer := tracing.New("webos", logger, 256)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))
	router.GET("/metrics/traces", tracing.TracesHandler(tracer))

	// Manual span creation
	span, ctx := tracer.StartSpan(ctx, "seed registry")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
