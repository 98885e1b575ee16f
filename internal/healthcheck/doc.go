// Package healthcheck probes the upstream's /health endpoint on an interval
// and records the result on the upstream tracker. The flag is advisory: the
// forwarder keeps relaying traffic regardless.
package healthcheck
