package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/clext/internal/gpu"
	"github.com/cwbudde/clext/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveRescan  bool
	shutdownWait time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the device inventory over HTTP",
	Long: `Start an HTTP server exposing the OpenCL platform and device inventory,
a descriptor decode endpoint and Prometheus metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "HTTP listen address")
	serveCmd.Flags().BoolVar(&serveRescan, "rescan", false, "Re-enumerate devices on every request instead of once at startup")
	serveCmd.Flags().DurationVar(&shutdownWait, "shutdown-timeout", 10*time.Second, "Grace period for in-flight requests on shutdown")
}

// inventorySource returns the Source the server reads from. Without rescan
// the inventory is taken once and enumeration failures are fatal.
func inventorySource(rescan bool) (server.Source, error) {
	if rescan {
		return gpu.EnumeratePlatforms, nil
	}

	platforms, err := gpu.EnumeratePlatforms()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate platforms: %w", err)
	}
	slog.Info("Enumerated OpenCL platforms", "platforms", len(platforms))

	return func() ([]gpu.PlatformInfo, error) {
		return platforms, nil
	}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	source, err := inventorySource(serveRescan)
	if err != nil {
		return err
	}

	srv := server.NewServer(serveAddr, source)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return srv.Shutdown(ctx)
}
