// Package executor issues one logical HTTP request against the backend with a
// per-attempt timeout, classifies each attempt, and retries transient failures
// with linear backoff.
//
// Status codes in [200,400) succeed on the spot. Codes in [400,500) are terminal
// and never retried. Codes of 500 and above, timeouts and network failures are
// retried up to the configured limit, sleeping attempt*RetryDelay before each
// retry. Every call ends in exactly one Result; Execute never returns an error.
//
//	exec := executor.New(executor.Config{BaseURL: "https://gateway.example.com"}, log)
//	res := exec.Execute(ctx, executor.RequestDescriptor{Path: "/api/v1/health"})
//	if !res.OK {
//		log.Warn("health check failed", slog.String("error", res.Failure.Message))
//	}
package executor
