// Package metrics exposes Prometheus collectors for room/session
// activity plus host resource gauges, following go-server-3's
// internal/metrics package (promauto registration, a Handler() for
// wiring into an HTTP mux) enriched with gopsutil system sampling from
// go-server's internal/metrics/system.go.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Registry wraps every Prometheus collector this server registers,
// against its own *prometheus.Registry rather than the global default —
// each Room in tests can build its own Registry without a "duplicate
// metrics collector registration" panic.
type Registry struct {
	reg *prometheus.Registry

	RoomsActive       prometheus.Gauge
	SessionsActive    prometheus.Gauge
	PushesCommitted   prometheus.Counter
	PushesRebased     prometheus.Counter
	PushesDiscarded   prometheus.Counter
	InvalidOperations prometheus.Counter
	PersistenceErrors prometheus.Counter
	ConnectRejected   *prometheus.CounterVec

	SystemCPUPercent prometheus.Gauge
	SystemMemUsedMB  prometheus.Gauge
}

// NewRegistry builds a fresh Prometheus registry and registers every
// collector against it, mirroring go-server-3's promauto usage but
// scoped per-instance via promauto.With instead of the package-global
// registerer.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		RoomsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "odin_sync_rooms_active",
			Help: "Number of rooms currently held in memory",
		}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "odin_sync_sessions_active",
			Help: "Number of connected sessions across all rooms",
		}),
		PushesCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "odin_sync_pushes_committed_total",
			Help: "Total pushes applied without rebase",
		}),
		PushesRebased: f.NewCounter(prometheus.CounterOpts{
			Name: "odin_sync_pushes_rebased_total",
			Help: "Total pushes that required a client-side rebase",
		}),
		PushesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "odin_sync_pushes_discarded_total",
			Help: "Total pushes discarded as no-ops",
		}),
		InvalidOperations: f.NewCounter(prometheus.CounterOpts{
			Name: "odin_sync_invalid_operations_total",
			Help: "Total pushes rejected for an invalid record or operation",
		}),
		PersistenceErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "odin_sync_persistence_errors_total",
			Help: "Total snapshot load/save failures",
		}),
		ConnectRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "odin_sync_connect_rejected_total",
			Help: "Total connect attempts rejected, labeled by reason",
		}, []string{"reason"}),
		SystemCPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Name: "odin_sync_system_cpu_percent",
			Help: "Host CPU utilization percent, smoothed",
		}),
		SystemMemUsedMB: f.NewGauge(prometheus.GaugeOpts{
			Name: "odin_sync_system_memory_used_mb",
			Help: "Host memory in use, megabytes",
		}),
	}
}

// Handler exposes the metrics endpoint for mounting into an http.ServeMux.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// SampleSystem refreshes the host resource gauges. Intended to be
// called on a periodic ticker from main; isolated from the hot path so
// a slow gopsutil syscall never blocks room processing.
func (r *Registry) SampleSystem() {
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		r.SystemCPUPercent.Set(percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.SystemMemUsedMB.Set(float64(vm.Used) / 1024 / 1024)
	}
}

// StartSystemSampler runs SampleSystem on interval until stop is closed.
func (r *Registry) StartSystemSampler(interval time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-t.C:
				r.SampleSystem()
			case <-stop:
				return
			}
		}
	}()
}
