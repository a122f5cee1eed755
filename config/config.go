// Package config loads coordinator settings from a YAML file and OFFLOAD_*
// environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-offload/engine"
	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/host"
)

const (
	envModulePath       = "OFFLOAD_MODULE_PATH"
	envDemo             = "OFFLOAD_DEMO"
	envMemoryLimitPages = "OFFLOAD_MEMORY_LIMIT_PAGES"
	envRunTimeout       = "OFFLOAD_RUN_TIMEOUT"
	envRunPolicy        = "OFFLOAD_RUN_POLICY"
	envListenAddr       = "OFFLOAD_LISTEN_ADDR"
	envDBPath           = "OFFLOAD_DB_PATH"
	envLogLevel         = "OFFLOAD_LOG_LEVEL"
	envLogFormat        = "OFFLOAD_LOG_FORMAT"
)

// Module selects the WebAssembly module. Without a path the built-in demo
// module is used.
type Module struct {
	Path             string        `yaml:"path"`
	Demo             string        `yaml:"demo"`
	InitExport       string        `yaml:"init_export"`
	RunExport        string        `yaml:"run_export"`
	ResultMessage    string        `yaml:"result_message"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages"`
	RunTimeout       time.Duration `yaml:"run_timeout"`
}

// Controller holds host controller settings.
type Controller struct {
	RunPolicy string `yaml:"run_policy"`
}

// Server holds HTTP facade settings.
type Server struct {
	ListenAddr  string   `yaml:"listen_addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// History holds run history settings. An empty DBPath disables it.
type History struct {
	DBPath string `yaml:"db_path"`
}

// Log holds logger settings.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Config is the complete coordinator configuration.
type Config struct {
	Log        Log        `yaml:"log"`
	History    History    `yaml:"history"`
	Controller Controller `yaml:"controller"`
	Module     Module     `yaml:"module"`
	Server     Server     `yaml:"server"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Module: Module{
			Demo:             "verify",
			InitExport:       engine.DefaultInitExport,
			RunExport:        engine.DefaultRunExport,
			ResultMessage:    engine.DefaultResultMessage,
			MemoryLimitPages: engine.DefaultMemoryLimitPages,
		},
		Controller: Controller{RunPolicy: host.RunPolicyPermissive.String()},
		Server: Server{
			ListenAddr:  ":8080",
			CORSOrigins: []string{"*"},
		},
		History: History{DBPath: "offload.db"},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(envModulePath); v != "" {
		c.Module.Path = v
	}
	if v := os.Getenv(envDemo); v != "" {
		c.Module.Demo = v
	}
	if v := os.Getenv(envMemoryLimitPages); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, envMemoryLimitPages)
		}
		c.Module.MemoryLimitPages = uint32(n)
	}
	if v := os.Getenv(envRunTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, envRunTimeout)
		}
		c.Module.RunTimeout = d
	}
	if v := os.Getenv(envRunPolicy); v != "" {
		c.Controller.RunPolicy = v
	}
	if v := os.Getenv(envListenAddr); v != "" {
		c.Server.ListenAddr = v
	}
	if v, ok := os.LookupEnv(envDBPath); ok {
		c.History.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(envLogFormat); v != "" {
		c.Log.Format = v
	}
	return nil
}

// Validate checks enumerated and bounded settings.
func (c Config) Validate() error {
	if _, ok := host.ParseRunPolicy(c.Controller.RunPolicy); !ok {
		return errors.InvalidInput(errors.PhaseConfig, "unknown run policy "+strconv.Quote(c.Controller.RunPolicy))
	}
	if c.Module.Path == "" {
		if _, ok := engine.ParseDemoBehavior(c.Module.Demo); !ok {
			return errors.InvalidInput(errors.PhaseConfig, "unknown demo module "+strconv.Quote(c.Module.Demo))
		}
	}
	if c.Module.MemoryLimitPages > engine.DefaultMemoryLimitPages {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("memory_limit_pages %d exceeds %d", c.Module.MemoryLimitPages, engine.DefaultMemoryLimitPages).
			Build()
	}
	if c.Module.RunTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "run_timeout must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return errors.InvalidInput(errors.PhaseConfig, "log format must be json or console")
	}
	return nil
}

// Engine returns the engine configuration for the selected module.
func (c Config) Engine() engine.Config {
	ec := engine.Config{
		Path:             c.Module.Path,
		InitExport:       c.Module.InitExport,
		RunExport:        c.Module.RunExport,
		ResultMessage:    c.Module.ResultMessage,
		MemoryLimitPages: c.Module.MemoryLimitPages,
		RunTimeout:       c.Module.RunTimeout,
	}
	if ec.Path == "" {
		behavior, _ := engine.ParseDemoBehavior(c.Module.Demo)
		ec.Wasm = engine.DemoWasm(behavior, 1)
		ec.InitExport = engine.DefaultInitExport
		ec.RunExport = engine.DefaultRunExport
	}
	return ec
}

// RunPolicy returns the parsed controller run policy.
func (c Config) RunPolicy() host.RunPolicy {
	p, _ := host.ParseRunPolicy(c.Controller.RunPolicy)
	return p
}

// NewLogger builds a zap logger for the configured level and format.
func (c Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if strings.ToLower(c.Log.Format) == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
