package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/marmos91/taskengine/internal/logger"
	"github.com/marmos91/taskengine/pkg/config"
)

// InitLogger initializes the process-wide structured logger from cfg.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// GetDefaultStateDir returns the default runtime state directory, the
// directory GetDefaultPidFile places its PID file in.
func GetDefaultStateDir() string {
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		return filepath.Join(stateDir, "taskengine")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "taskengine")
	}
	return filepath.Join(homeDir, ".local", "state", "taskengine")
}

// GetDefaultPidFile returns the default PID file path.
func GetDefaultPidFile() string {
	return filepath.Join(GetDefaultStateDir(), "taskengine.pid")
}
