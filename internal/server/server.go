package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/clext/internal/clext"
	"github.com/cwbudde/clext/internal/gpu"
)

// maxDecodeBody bounds POST /api/v1/decode bodies.
const maxDecodeBody = 4096

// Source returns the current platform inventory.
type Source func() ([]gpu.PlatformInfo, error)

// Server represents the HTTP server
type Server struct {
	source  Source
	addr    string
	server  *http.Server
	metrics *metrics
}

// DeviceEntry is one device in the flattened device listing.
type DeviceEntry struct {
	Index    int            `json:"index"`
	Platform string         `json:"platform"`
	Device   gpu.DeviceInfo `json:"device"`
}

// NewServer creates a new HTTP server
func NewServer(addr string, source Source) *Server {
	s := &Server{
		source:  source,
		addr:    addr,
		metrics: newMetrics(),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/platforms", s.handlePlatforms)
	mux.HandleFunc("/api/v1/devices", s.handleDevices)
	mux.HandleFunc("/api/v1/devices/", s.handleDeviceWithIndex)
	mux.HandleFunc("/api/v1/decode/", s.handleDecode)
	mux.Handle("/metrics", s.metrics.handler(s.source))

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server. It returns http.ErrServerClosed once
// Shutdown has been called, including when Shutdown ran first.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok\n")
}

// handlePlatforms handles GET /api/v1/platforms
func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	platforms, err := s.source()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to enumerate platforms: %v", err), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, platforms)
}

// handleDevices handles GET /api/v1/devices
func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries, err := s.deviceEntries()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to enumerate devices: %v", err), http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// handleDeviceWithIndex handles /api/v1/devices/:index and
// /api/v1/devices/:index/topology
func (s *Server) handleDeviceWithIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Device index required", http.StatusBadRequest)
		return
	}

	index, err := strconv.Atoi(parts[0])
	if err != nil || index < 0 {
		http.Error(w, "Invalid device index", http.StatusBadRequest)
		return
	}

	entries, err := s.deviceEntries()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to enumerate devices: %v", err), http.StatusServiceUnavailable)
		return
	}
	if index >= len(entries) {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	entry := entries[index]

	switch {
	case len(parts) == 1:
		writeJSON(w, http.StatusOK, entry)
	case parts[1] == "topology":
		if entry.Device.Topology == nil {
			http.Error(w, "Device reports no topology", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, entry.Device.Topology)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleDecode handles POST /api/v1/decode/:kind. The body is either raw
// bytes (application/octet-stream) or a hex string.
func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	kind, err := clext.ParseKind(strings.TrimPrefix(r.URL.Path, "/api/v1/decode/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxDecodeBody))
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to read body: %v", err), http.StatusBadRequest)
		return
	}

	var decoded *clext.Decoded
	if r.Header.Get("Content-Type") == "application/octet-stream" {
		decoded, err = clext.Decode(kind, body)
	} else {
		decoded, err = clext.DecodeHex(kind, string(body))
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, decoded)
}

func (s *Server) deviceEntries() ([]DeviceEntry, error) {
	platforms, err := s.source()
	if err != nil {
		return nil, err
	}

	entries := []DeviceEntry{}
	for _, platform := range platforms {
		for _, device := range platform.Devices {
			entries = append(entries, DeviceEntry{
				Index:    len(entries),
				Platform: platform.Name,
				Device:   device,
			})
		}
	}
	return entries, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
