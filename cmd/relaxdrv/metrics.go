package main

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AJMGroup/matador-go/internal/metrics"
)

// startMetrics builds a fresh Collectors set and, when addr is non-empty,
// registers it with a private registry (never the global default, matching
// the "no package-level singletons" discipline) and serves it at
// http://addr/metrics in the background, mirroring vjache-cie's
// cmd/cie/index.go metrics-endpoint idiom.
func startMetrics(addr string) *metrics.Collectors {
	mx := metrics.New()
	if addr == "" {
		return mx
	}

	reg := prometheus.NewRegistry()
	mx.MustRegister(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("relaxdrv: metrics server stopped: %v", err)
		}
	}()

	return mx
}
