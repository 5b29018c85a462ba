// Package pprofserver serves the debug endpoints on a loopback address.
package pprofserver

import (
	"context"
	"github.com/myrjola/profilescan/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"time"
)

// Handle registers the pprof handlers and the Prometheus /metrics endpoint for gatherer.
func Handle(mux *http.ServeMux, gatherer prometheus.Gatherer) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})) //nolint:exhaustruct // defaults
}

// Run serves the debug endpoints on addr until ctx is cancelled. Use a loopback address such as localhost:6060.
func Run(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	Handle(mux, gatherer)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrap(err, "listen", slog.String("addr", addr))
	}
	srv := &http.Server{ //nolint:exhaustruct // defaults
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second, //nolint:mnd // 5s
	}

	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)
		<-ctx.Done()
		if shutdownErr := srv.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "debug server shutdown failed", errors.SlogError(shutdownErr))
		}
	}()

	logger.LogAttrs(ctx, slog.LevelInfo, "starting debug server", slog.String("debug_addr", listener.Addr().String()))
	if err = srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve debug server")
	}
	<-shutdownComplete
	return nil
}
