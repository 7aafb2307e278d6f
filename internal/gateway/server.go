package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zlseong/OTA-Vehicle-Mobile-Gateway/internal/pkg/metrics"
)

// router builds the diagnostics HTTP surface: liveness, status and
// Prometheus metrics.
func (g *Gateway) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", g.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", g.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (g *Gateway) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (g *Gateway) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"vin":            g.cfg.VIN,
		"model":          g.cfg.Model,
		"uptime_seconds": int64(time.Since(g.started).Seconds()),
		"ota_state":      g.deps.Orchestrator.State(),
		"vehicle_state":  string(g.deps.Tracker.Current()),
	}
	if g.deps.Partitions != nil {
		status["active_slot"] = g.deps.Partitions.Active().String()
		status["boot_count"] = g.deps.Partitions.BootStatus().BootCount
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}

// serveDiagnostics runs the HTTP server until ctx is canceled.
func (g *Gateway) serveDiagnostics(ctx context.Context) error {
	if g.cfg.HTTPAddr == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	srv := &http.Server{
		Addr:              g.cfg.HTTPAddr,
		Handler:           g.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("Diagnostics server listening", "addr", g.cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
