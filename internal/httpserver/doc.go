// Package httpserver wraps http.Server with address validation and a
// context-driven graceful shutdown.
package httpserver
