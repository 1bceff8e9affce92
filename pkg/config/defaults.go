package config

import (
	"strings"
	"time"

	"github.com/marmos91/taskengine/internal/bytesize"
	"github.com/marmos91/taskengine/internal/registry"
	"github.com/marmos91/taskengine/internal/taskmeta"
	"github.com/marmos91/taskengine/internal/taskprocessor"
)

// ApplyDefaults fills in missing configuration with default values.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDatabaseDefaults(&cfg.Database)
	applyAPIDefaults(&cfg.API)
	applyTaskDirsDefaults(&cfg.TaskDirs)
	applyOutputDefaults(&cfg.Output)
	applyProcessorDefaults(&cfg.Processor)
	applyRegistryDefaults(&cfg.Registry)

	if cfg.ReplicaID == "" {
		cfg.ReplicaID = "taskengine-0"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyDatabaseDefaults(cfg *taskmeta.Config) {
	if cfg.Type == "" {
		cfg.Type = taskmeta.DatabaseTypeSQLite
	}
	if cfg.Type == taskmeta.DatabaseTypeSQLite && cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "taskengine.db"
	}
}

func applyAPIDefaults(cfg *API) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
}

func applyTaskDirsDefaults(cfg *TaskDirsConfig) {
	if cfg.QueueDBDir == "" {
		cfg.QueueDBDir = "/var/lib/taskengine/queues"
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "/var/lib/taskengine/output"
	}
	if cfg.LogDir == "" {
		cfg.LogDir = "/var/log/taskengine/tasks"
	}
	if cfg.ClientLogDir == "" {
		cfg.ClientLogDir = "/var/log/taskengine/clients"
	}
}

func applyOutputDefaults(cfg *OutputConfig) {
	if cfg.SegmentThreshold == 0 {
		cfg.SegmentThreshold = 500 * bytesize.MiB
	}
}

func applyProcessorDefaults(cfg *ProcessorConfig) {
	if cfg.ProgressCadence == 0 {
		cfg.ProgressCadence = taskprocessor.DefaultProgressCadence
	}
}

func applyRegistryDefaults(cfg *RegistryConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 256
	}
}

// toRegistryConfig adapts RegistryConfig to internal/registry.Config.
func (c RegistryConfig) toRegistryConfig() registry.Config {
	return registry.Config{Workers: c.Workers, QueueSize: c.QueueSize}
}
