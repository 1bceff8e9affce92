package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/marmos91/taskengine/internal/controlplane/api"
	"github.com/marmos91/taskengine/internal/fetchfn"
	"github.com/marmos91/taskengine/internal/fetchfn/builtin"
	"github.com/marmos91/taskengine/internal/logger"
	"github.com/marmos91/taskengine/internal/outputsink"
	"github.com/marmos91/taskengine/internal/registry"
	"github.com/marmos91/taskengine/internal/tasklog"
	"github.com/marmos91/taskengine/internal/taskmeta"
	"github.com/marmos91/taskengine/internal/taskprocessor"
	"github.com/marmos91/taskengine/pkg/config"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the task engine server",
	Long: `Start the task engine's REST API and the Processor Registry's
background dispatch workers.

On startup, every task left in the Running state by a previous crash is
corrected to Pending and redispatched (spec.md §4.6's reconciliation
sequence), so no task is silently abandoned.

Use --config to point at a configuration file, or rely on environment
variable overrides (TASKENGINE_*) and the default search path at
$XDG_CONFIG_HOME/taskengine/config.yaml.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("task engine starting", "replica_id", cfg.ReplicaID, "version", Version, "commit", Commit)

	meta, err := taskmeta.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open task metadata store: %w", err)
	}
	defer func() {
		if err := meta.Close(); err != nil {
			logger.Error("task metadata store close error", "error", err)
		}
	}()

	fetchRegistry := buildFetchRegistry(cfg)

	taskLogs := tasklog.NewStore(cfg.TaskDirs.LogDir, nil)
	defer func() {
		if err := taskLogs.CloseAll(); err != nil {
			logger.Error("task log store close error", "error", err)
		}
	}()

	uploader, err := outputsink.NewS3Uploader(ctx, outputsink.S3UploaderConfig{
		EndpointURL:     cfg.Output.S3.Endpoint,
		Region:          cfg.Output.S3.Region,
		Bucket:          cfg.Output.S3.Bucket,
		AccessKeyID:     cfg.Output.S3.AccessKey,
		SecretAccessKey: cfg.Output.S3.SecretKey,
		ForcePathStyle:  cfg.Output.S3.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize output uploader: %w", err)
	}

	serverIP := hostname()
	metrics := taskprocessor.NewMetrics(prometheus.DefaultRegisterer)

	reg := registry.New(registry.Dependencies{
		Meta:       meta,
		Fetch:      fetchRegistry,
		TaskLogs:   taskLogs,
		Uploader:   uploader,
		Metrics:    metrics,
		QueueDBDir: cfg.TaskDirs.QueueDBDir,
		OutputDir:  cfg.TaskDirs.OutputDir,
		ServerIP:   serverIP,
		Threshold:  cfg.Output.SegmentThreshold,
		Cadence:    cfg.Processor.ProgressCadence,
	}, cfg.Registry.toRegistryConfig())

	reg.Start(ctx)
	defer reg.Stop(cfg.ShutdownTimeout)

	stats, err := reg.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconcile task state on startup: %w", err)
	}
	logger.Info("startup reconciliation complete",
		"corrected_to_pending", stats.CorrectedToPending, "dispatched", stats.Dispatched)

	apiServer := api.NewServer(api.Config{
		Port:         cfg.API.Port,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  cfg.API.IdleTimeout,
	}, meta, reg, taskLogs, cfg.TaskDirs.QueueDBDir, cfg.TaskDirs.ClientLogDir)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("task engine is running", "port", apiServer.Port())

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("API server shutdown error", "error", err)
			return err
		}
		logger.Info("task engine stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("API server error", "error", err)
			return err
		}
	}

	return nil
}

// buildFetchRegistry registers the dummy-api data source unconditionally
// (it needs no credentials) plus spotify-api / spotify-internal whenever
// their base URL is configured.
func buildFetchRegistry(cfg *config.Config) *fetchfn.Registry {
	reg := fetchfn.NewRegistry()
	builtin.RegisterDummyAPI(reg)

	if cfg.FetchFunctions.SpotifyAPI.BaseURL != "" {
		client := builtin.NewHTTPSpotifyClient(cfg.FetchFunctions.SpotifyAPI.BaseURL, cfg.FetchFunctions.SpotifyAPI.Token)
		builtin.RegisterSpotifyAPI(reg, client)
		logger.Info("registered spotify-api fetch functions")
	}
	if cfg.FetchFunctions.SpotifyInternal.BaseURL != "" {
		client := builtin.NewHTTPSpotifyClient(cfg.FetchFunctions.SpotifyInternal.BaseURL, cfg.FetchFunctions.SpotifyInternal.Token)
		builtin.RegisterSpotifyInternal(reg, client)
		logger.Info("registered spotify-internal fetch functions")
	}

	return reg
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
