package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

// DaemonSettings holds the daemon's ambient configuration: bind address,
// peer allowlist, pool/queue sizing and tracing export, loaded via viper
// from config.yaml (overridable by RETRIEVER_-prefixed environment
// variables), matching SPEC_FULL.md's DOMAIN STACK configuration layer.
type DaemonSettings struct {
	ListenAddr   string   `mapstructure:"listen_addr"`
	AllowedPeers []string `mapstructure:"allowed_peers"`

	ConnectionHandlers int `mapstructure:"connection_handlers"`
	TransferWorkers    int `mapstructure:"transfer_workers"`
	TaskQueueCapacity  int `mapstructure:"task_queue_capacity"`
	ConnQueueCapacity  int `mapstructure:"connection_queue_capacity"`

	Tracing TracingSettings `mapstructure:"tracing"`
}

// TracingSettings configures OpenTelemetry OTLP/HTTP export, mirroring
// internal/tracing.Config.
type TracingSettings struct {
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

// DefaultDaemonSettings mirrors the constants supervisor.New uses. The
// daemon applies only ListenAddr, AllowedPeers and Tracing from loaded
// settings; the pool and queue sizes are loaded but supervisor.New always
// uses its own constants (8 handlers, 5 workers, queues of 1000 and 25).
func DefaultDaemonSettings() DaemonSettings {
	return DaemonSettings{
		ListenAddr:         "0.0.0.0:54500",
		ConnectionHandlers: 8,
		TransferWorkers:    5,
		TaskQueueCapacity:  1000,
		ConnQueueCapacity:  25,
		Tracing: TracingSettings{
			ServiceName: "ecmwf-retriever-daemon",
		},
	}
}

// LoadDaemonSettings reads config.yaml (if present) via viper, falling
// back to DefaultDaemonSettings for anything unset, and layering
// RETRIEVER_-prefixed environment variables over the file — e.g.
// RETRIEVER_LISTEN_ADDR, RETRIEVER_TRACING_ENDPOINT.
func LoadDaemonSettings(path string) (DaemonSettings, error) {
	v := viper.New()
	defaults := DefaultDaemonSettings()
	v.SetDefault("listen_addr", defaults.ListenAddr)
	v.SetDefault("connection_handlers", defaults.ConnectionHandlers)
	v.SetDefault("transfer_workers", defaults.TransferWorkers)
	v.SetDefault("task_queue_capacity", defaults.TaskQueueCapacity)
	v.SetDefault("connection_queue_capacity", defaults.ConnQueueCapacity)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	v.SetEnvPrefix("retriever")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, fs.ErrNotExist) {
				return DaemonSettings{}, fmt.Errorf("reading daemon config %s: %w", path, err)
			}
		}
	}

	var s DaemonSettings
	if err := v.Unmarshal(&s); err != nil {
		return DaemonSettings{}, fmt.Errorf("decoding daemon config: %w", err)
	}
	return s, nil
}
