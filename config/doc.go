// Package config handles loading and validation of the gateway configuration from
// an optional YAML file and environment variables. It covers the proxy listener,
// the tunnel-exposed upstream, the retrying client policy, health checks, the
// circuit breaker, and logging.
package config
