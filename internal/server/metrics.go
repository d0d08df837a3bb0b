package server

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	mu           sync.Mutex
	registry     *prometheus.Registry
	devices      *prometheus.GaugeVec
	deviceInfo   *prometheus.GaugeVec
	refreshFails prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clext_devices",
			Help: "Number of OpenCL devices per platform and device type.",
		}, []string{"platform", "type"}),
		deviceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clext_device_info",
			Help: "Constant 1 per OpenCL device, labelled with its PCIe location when reported.",
		}, []string{"platform", "device", "pcie", "board"}),
		refreshFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "clext_inventory_refresh_failures_total",
			Help: "Number of failed inventory refreshes.",
		}),
	}
	m.registry.MustRegister(m.devices, m.deviceInfo, m.refreshFails)
	return m
}

// refresh rebuilds the gauges from the current inventory.
func (m *metrics) refresh(source Source) {
	platforms, err := source()
	if err != nil {
		m.refreshFails.Inc()
		slog.Warn("Failed to refresh device metrics", "error", err)
		return
	}

	m.devices.Reset()
	m.deviceInfo.Reset()
	for _, platform := range platforms {
		for _, device := range platform.Devices {
			m.devices.WithLabelValues(platform.Name, string(device.Type)).Inc()

			pcie := ""
			if p, ok := device.PCIe(); ok {
				pcie = p.String()
			}
			m.deviceInfo.WithLabelValues(platform.Name, device.Name, pcie, device.BoardName).Set(1)
		}
	}
}

func (m *metrics) handler(source Source) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.refresh(source)
		inner.ServeHTTP(w, r)
	})
}
