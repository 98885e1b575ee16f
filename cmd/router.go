package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperdatalab/gateway/internal/metrics"
	"github.com/hyperdatalab/gateway/internal/upstream"
)

type healthResponse struct {
	Status          string `json:"status"`
	Service         string `json:"service"`
	Version         string `json:"version"`
	Upstream        string `json:"upstream,omitempty"`
	UpstreamHealthy *bool  `json:"upstream_healthy,omitempty"`
	InFlight        int    `json:"in_flight"`
	EWMAMillis      int64  `json:"ewma_ms"`
}

func setupRouter(proxy http.Handler, collector *metrics.Collector, target *upstream.Upstream) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthzHandler(target))
	r.Get("/metrics", collector.Handler("proxy"))
	r.Handle("/*", proxy)

	return r
}

func healthzHandler(target *upstream.Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:  "ok",
			Service: "gateway",
			Version: version,
		}

		if target != nil {
			healthy := target.IsHealthy()
			resp.Upstream = target.String()
			resp.UpstreamHealthy = &healthy
			resp.InFlight = target.InFlight()
			resp.EWMAMillis = target.EWMATime().Milliseconds()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
