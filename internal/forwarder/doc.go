// Package forwarder relays inbound HTTP requests to the tunnel-exposed upstream.
//
// The routing prefix is stripped from the inbound path and re-appended when the
// upstream URL is built, so the proxy is transparent for that segment. Outbound
// headers go through an ordered pipeline (copy, delete denylist, overlay forced
// headers). Every failure is answered with a JSON {error, detail} body; nothing
// escapes to the HTTP server.
package forwarder
