package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// initTelemetry wires a Prometheus-backed MeterProvider and registers it as
// the global provider, so usp.DefaultMetrics() picks it up without the
// caller threading a provider through every layer. If
// addr is non-empty it also starts a /metrics HTTP server.
//
// Returns a shutdown func to flush and close the providers on exit.
func initTelemetry(addr string) (shutdown func(context.Context) error, err error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp))
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	var srv *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: addr, Handler: mux}
		go srv.ListenAndServe()
	}

	return func(ctx context.Context) error {
		if srv != nil {
			srv.Shutdown(ctx)
		}
		if err := tp.Shutdown(ctx); err != nil {
			return err
		}
		return mp.Shutdown(ctx)
	}, nil
}
