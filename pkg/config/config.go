// Package config loads the task engine's static configuration: logging,
// the metadata store backend, the REST API bind address, and the
// filesystem/S3 layout each Processor needs (spec.md §6), grounded on the
// teacher's pkg/config package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/marmos91/taskengine/internal/bytesize"
	"github.com/marmos91/taskengine/internal/taskmeta"
)

// Config is the task engine's static configuration.
//
// Configuration sources, highest precedence first:
//  1. Environment variables (TASKENGINE_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Database selects and configures the Task Metadata Store backend
	// (sqlite or postgres).
	Database taskmeta.Config `mapstructure:"database" yaml:"database"`

	API API `mapstructure:"api" yaml:"api" validate:"required"`

	// TaskDirs lays out the per-task filesystem state spec.md §4.1/§4.4
	// assume: one queue database and one log file per task, plus the local
	// staging directory for output segments before upload.
	TaskDirs TaskDirsConfig `mapstructure:"task_dirs" yaml:"task_dirs"`

	// Output configures the Output Sink's rotation threshold and S3
	// destination (spec.md §4.4).
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Processor configures the Task Processor's progress-log cadence
	// (spec.md §4.5).
	Processor ProcessorConfig `mapstructure:"processor" yaml:"processor"`

	// Registry configures the Processor Registry's background dispatch
	// worker pool (spec.md §4.6).
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`

	// FetchFunctions configures which optional built-in data sources are
	// registered at startup. dummy-api is always registered; spotify-api
	// and spotify-internal require credentials to reach the real service.
	FetchFunctions FetchFunctionsConfig `mapstructure:"fetch_functions" yaml:"fetch_functions"`

	// ReplicaID identifies this server instance in output segment object
	// keys, so concurrent replicas never collide (spec.md §4.4).
	ReplicaID string `mapstructure:"replica_id" yaml:"replica_id"`

	// ShutdownTimeout bounds graceful shutdown of the API server and the
	// registry's worker pool.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls the process-wide logger (internal/logger).
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// API configures the REST server's bind address and timeouts.
type API struct {
	Port         int           `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// TaskDirsConfig names the three per-task directories.
type TaskDirsConfig struct {
	// QueueDBDir holds each task's durable queue sqlite file
	// (task_progress_dbs_dir in spec.md §6's vocabulary).
	QueueDBDir string `mapstructure:"queue_db_dir" validate:"required" yaml:"queue_db_dir"`

	// OutputDir stages output segments before they are compressed and
	// uploaded (task_output_dir).
	OutputDir string `mapstructure:"output_dir" validate:"required" yaml:"output_dir"`

	// LogDir holds each task's per-task-id log file (task_log_dir).
	LogDir string `mapstructure:"log_dir" validate:"required" yaml:"log_dir"`

	// ClientLogDir holds one log file per data_source, served by
	// download_client_logs (app_log_dir).
	ClientLogDir string `mapstructure:"client_log_dir" validate:"required" yaml:"client_log_dir"`
}

// OutputConfig configures segment rotation and the S3 upload destination.
type OutputConfig struct {
	// SegmentThreshold is the uncompressed size that triggers rotation.
	// Supports human-readable sizes: "64Mi", "100MB".
	SegmentThreshold bytesize.ByteSize `mapstructure:"segment_threshold" yaml:"segment_threshold,omitempty"`

	S3 S3Config `mapstructure:"s3" yaml:"s3" validate:"required"`
}

// S3Config names the bucket and credentials used to upload compressed
// output segments.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Bucket    string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Region    string `mapstructure:"region" yaml:"region"`
}

// FetchFunctionsConfig names the optional credentials needed to register
// the spotify-api / spotify-internal data sources. Either is skipped at
// startup when its BaseURL is empty.
type FetchFunctionsConfig struct {
	SpotifyAPI      SpotifyClientConfig `mapstructure:"spotify_api" yaml:"spotify_api"`
	SpotifyInternal SpotifyClientConfig `mapstructure:"spotify_internal" yaml:"spotify_internal"`
}

// SpotifyClientConfig configures one Spotify HTTP client.
type SpotifyClientConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Token   string `mapstructure:"token" yaml:"token"`
}

// ProcessorConfig configures the Task Processor's progress-log cadence.
type ProcessorConfig struct {
	ProgressCadence time.Duration `mapstructure:"progress_cadence" yaml:"progress_cadence"`
}

// RegistryConfig configures the Processor Registry's dispatch worker pool.
type RegistryConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TASKENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks composes the decode hooks for ByteSize and
// time.Duration, so config files may use human-readable strings like
// "64Mi" or "30s" for those fields.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "taskengine")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskengine")
}

// GetDefaultConfigPath returns the default config file location.
func GetDefaultConfigPath() string {
	return filepath.Join(defaultConfigDir(), "config.yaml")
}
