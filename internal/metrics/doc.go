// Package metrics collects request metrics for the retrying client and the proxy.
//
// Events flow through a buffered channel into a single collector goroutine, so
// emitting never blocks a request path:
//   - attempts and retries of client calls, keyed by endpoint
//   - forwarded requests, keyed by upstream URL
//   - upstream health transitions
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventForwardCompleted,
//		Target:     "https://abc.ngrok-free.app",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//		Success:    true,
//	})
//
//	snapshot := collector.Snapshot("proxy")
//
// Pending events are drained when the collector's context is cancelled.
package metrics
