// Package logger provides structured logging for the gateway binaries.
// It wraps log/slog: JSON records in production, text records elsewhere,
// each tagged with the running environment.
package logger
