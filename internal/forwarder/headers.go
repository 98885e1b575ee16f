package forwarder

import (
	"net/http"

	"github.com/hyperdatalab/gateway/internal/upstream"
)

// HeaderPipeline rewrites inbound headers for the upstream request in three
// ordered steps: copy everything, delete Deny, then set Force. Forced headers
// always win.
type HeaderPipeline struct {
	Deny  []string
	Force http.Header
}

// DefaultHeaderPipeline drops the headers that describe the inbound connection
// and forces a JSON content type plus the tunnel bypass header.
func DefaultHeaderPipeline() HeaderPipeline {
	force := make(http.Header)
	force.Set("Content-Type", "application/json")
	force.Set(upstream.BypassHeader, "true")

	return HeaderPipeline{
		Deny:  []string{"Host", "Connection"},
		Force: force,
	}
}

func (p HeaderPipeline) Apply(in http.Header) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}

	for _, name := range p.Deny {
		out.Del(name)
	}

	for name, values := range p.Force {
		out.Del(name)
		for _, v := range values {
			out.Add(name, v)
		}
	}

	return out
}
