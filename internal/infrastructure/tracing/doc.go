/*
Package tracing provides request spans and the HTTP access log.

Every HTTP request gets a span. The trace ID is taken from the X-Trace-ID
header when the caller supplies one and generated otherwise; both IDs are
echoed back in the response headers. Finished spans go through a buffered
channel to a collector goroutine that writes one structured log line per
request, so handlers never block on logging.

# Usage

	tracer := tracing.New("cdpgate", logger.Component("http"))
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "browser.launch")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
