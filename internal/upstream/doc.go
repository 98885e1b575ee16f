// Package upstream tracks the single tunnel-exposed backend the gateway
// forwards to: its parsed base URL, an advisory health flag, in-flight
// requests, and a smoothed response time.
package upstream
