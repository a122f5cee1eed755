package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/host"
	"github.com/wippyai/wasm-offload/httpapi"
	"github.com/wippyai/wasm-offload/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the controller over HTTP",
	Long: `Serve starts one execution context and exposes it over HTTP: status,
run triggering, retry, run history and Prometheus metrics.`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.listen_addr)")
	serveCmd.Flags().Duration("run-wait", time.Minute, "How long POST /v1/runs waits before answering 202")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.ListenAddr
	if v, _ := cmd.Flags().GetString("addr"); v != "" {
		addr = v
	}
	runWait, _ := cmd.Flags().GetDuration("run-wait")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ctrl := a.controller(
		host.WithLogger(a.logger.Named("host")),
		host.WithWorkerOptions(
			worker.WithMetrics(worker.NewMetrics(reg)),
			worker.WithLogger(a.logger.Named("worker")),
		),
		host.OnStateChange(func(s host.State) {
			a.logger.Info("module state changed", zap.Stringer("state", s))
		}),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []httpapi.Option{
		httpapi.WithLogger(a.logger.Named("http")),
		httpapi.WithRegistry(reg),
		httpapi.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		httpapi.WithRunWait(runWait),
	}
	if a.store != nil {
		opts = append(opts, httpapi.WithStore(a.store))
	}
	srv := httpapi.NewServer(addr, ctrl, opts...)

	a.logger.Info("serving", zap.String("addr", addr), zap.Stringer("policy", a.cfg.RunPolicy()))
	runErr := srv.Run(ctx)

	dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Dispose(dctx); err != nil {
		a.logger.Warn("dispose controller", zap.Error(err))
	}
	return runErr
}
