// Package apiclient exposes the backend's named operations (report listing,
// lookup, deletion, health) as thin wrappers that build request descriptors
// for the retrying executor.
package apiclient
