package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/config"
	"github.com/wippyai/wasm-offload/engine"
	"github.com/wippyai/wasm-offload/history"
	"github.com/wippyai/wasm-offload/host"
	"github.com/wippyai/wasm-offload/worker"
)

var rootCmd = &cobra.Command{
	Use:           "offload",
	Short:         "Run a WebAssembly prover in an isolated execution context",
	Long:          `offload initializes a prover module once, in its own execution context, and runs proofs on request.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("module", "", "Path to the prover .wasm (default: built-in demo module)")
	rootCmd.PersistentFlags().String("demo", "", "Built-in demo behavior: verify, reject, trap, spin, failing-init")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("run-policy", "", "Run policy: permissive or strict")
	rootCmd.PersistentFlags().Bool("no-history", false, "Do not record runs in the history database")
}

// app bundles what every subcommand needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  history.Store
}

// loadConfig reads the config file and environment, then applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	if v, _ := cmd.Flags().GetString("module"); v != "" {
		cfg.Module.Path = v
	}
	if v, _ := cmd.Flags().GetString("demo"); v != "" {
		cfg.Module.Path = ""
		cfg.Module.Demo = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("run-policy"); v != "" {
		cfg.Controller.RunPolicy = v
	}
	if off, _ := cmd.Flags().GetBool("no-history"); off {
		cfg.History.DBPath = ""
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// setup loads configuration, installs loggers and opens the history store.
// Loggers go to stderr; TUI sessions pass quiet to keep the screen clean.
func setup(cmd *cobra.Command, quiet bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := zap.NewNop()
	if !quiet {
		if logger, err = cfg.NewLogger(); err != nil {
			return nil, err
		}
	}
	worker.SetLogger(logger.Named("worker"))
	host.SetLogger(logger.Named("host"))
	engine.SetLogger(logger.Named("engine"))

	a := &app{cfg: cfg, logger: logger}
	if cfg.History.DBPath != "" {
		store, err := history.NewSQLiteStore(cfg.History.DBPath)
		if err != nil {
			return nil, err
		}
		a.store = store
	}
	return a, nil
}

// controller starts a controller for the configured module.
func (a *app) controller(opts ...host.Option) *host.Controller {
	base := []host.Option{host.WithRunPolicy(a.cfg.RunPolicy())}
	if a.store != nil {
		base = append(base, host.OnComplete(history.Recorder(a.store, a.logger)))
	}
	return host.New(engine.New(a.cfg.Engine()), append(base, opts...)...)
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close history", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
