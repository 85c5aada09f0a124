package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/latticehost/hostcore/hostlog"
)

// serveMetrics exposes the Prometheus registry on addr until the process
// exits. Listen errors are logged, not fatal.
func serveMetrics(addr string, log hostlog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("metrics server stopped", "error", err)
	}
}
