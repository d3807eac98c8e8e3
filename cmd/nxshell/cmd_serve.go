package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nxshell/nxshell/pkg/util"
)

var (
	serveLimit       int
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer JSON-lines driver requests on stdin",
	Long: `Keep one driver instance alive and answer requests read from stdin.

Each line is a request:

  {"id": "1", "command": "save", "context": {...}, "params": {"folder_path": "..."}}

and produces one response line on stdout:

  {"id": "1", "command": "save", "result": "nx1-running-180226-101500"}

Requests run concurrently; responses carry the request id. Send an
"initialize" request before any other command.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		d, err := newDriver(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := d.Cleanup(); err != nil {
				util.Warnf("cleanup: %v", err)
			}
		}()

		if serveMetricsAddr != "" {
			srv := &http.Server{
				Addr:              serveMetricsAddr,
				Handler:           promhttp.HandlerFor(driverStats.Registry(), promhttp.HandlerOpts{}),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					util.Errorf("metrics server: %v", err)
				}
			}()
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				srv.Shutdown(sctx)
			}()
			util.Infof("Serving metrics on %s/metrics", serveMetricsAddr)
		}

		return d.Serve(ctx, os.Stdin, os.Stdout, serveLimit)
	},
}

func init() {
	serveCmd.Flags().IntVar(&serveLimit, "limit", 0, "Maximum concurrent requests (0: unlimited)")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9310)")
}
