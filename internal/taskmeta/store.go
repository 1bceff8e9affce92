package taskmeta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/marmos91/taskengine/internal/taskerr"
	"github.com/marmos91/taskengine/internal/taskstate"
)

// DatabaseType selects the metadata store's backend.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses SQLite (single-node, default).
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL (HA-capable).
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the metadata database file.
	Path string
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config configures a Store.
type Config struct {
	Type     DatabaseType
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "taskengine.db"
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 25
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 5
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// ErrNotFound is returned when a task id does not exist.
var ErrNotFound = taskerr.NewNotFound("task not found")

// Store persists task metadata. It supports SQLite and PostgreSQL through
// the same codebase, selected via Config.Type.
type Store struct {
	db     *gorm.DB
	config *Config
}

// Open creates a new metadata store based on config, applying AutoMigrate.
func Open(config *Config) (*Store, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("taskmeta: invalid config: %w", err)
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if dir := filepath.Dir(config.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("taskmeta: create database directory: %w", err)
			}
		}
		// WAL + busy_timeout: one writer (the API server), many readers
		// (status polling, progress endpoints) without lock contention.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("taskmeta: unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("taskmeta: connect to database: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("taskmeta: get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(AllModels()...); err != nil {
		return nil, fmt.Errorf("taskmeta: run migration: %w", err)
	}

	return &Store{db: db, config: config}, nil
}

// DB returns the underlying GORM connection, for advanced queries or tests.
func (s *Store) DB() *gorm.DB { return s.db }

// CreateTask inserts a new task in the Paused state (spec.md §4.5 initial
// state) and returns it with its assigned ID.
func (s *Store) CreateTask(ctx context.Context, dataSource, taskType string, params []byte) (*Task, error) {
	task := &Task{
		Status:     taskstate.Initial(),
		DataSource: dataSource,
		TaskType:   taskType,
		Params:     params,
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("taskmeta: create task: %w", err)
	}
	return task, nil
}

// GetTask fetches one task by id.
func (s *Store) GetTask(ctx context.Context, id uint) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &task, nil
}

// ListTasks returns a cursor-paginated page of tasks ordered by id.
func (s *Store) ListTasks(ctx context.Context, cursor *uint, limit int) ([]*Task, *uint, error) {
	if limit <= 0 {
		limit = 50
	}

	q := s.db.WithContext(ctx).Order("id asc").Limit(limit + 1)
	if cursor != nil {
		q = q.Where("id > ?", *cursor)
	}

	var tasks []*Task
	if err := q.Find(&tasks).Error; err != nil {
		return nil, nil, err
	}

	var next *uint
	if len(tasks) > limit {
		n := tasks[limit-1].ID
		next = &n
		tasks = tasks[:limit]
	}
	return tasks, next, nil
}

// ListTasksByStatus returns every task currently in status, oldest first.
// Used by internal/registry at startup to find tasks left Running or
// Pending by a previous process (spec.md §4.6).
func (s *Store) ListTasksByStatus(ctx context.Context, status taskstate.Status) ([]*Task, error) {
	var tasks []*Task
	if err := s.db.WithContext(ctx).Where("status = ?", status).Order("id asc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateStatus transitions a task's status, validating the transition
// against internal/taskstate and letting GORM's autoUpdateTime hook refresh
// UpdatedAt (spec.md §8 invariant 4: UpdatedAt only moves forward).
func (s *Store) UpdateStatus(ctx context.Context, id uint, to taskstate.Status) error {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !taskstate.CanTransition(task.Status, to) {
		return taskerr.NewIllegalState(fmt.Sprintf("cannot transition task %d from %s to %s", id, task.Status, to))
	}

	result := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendUpload records one completed segment upload for a task.
func (s *Store) AppendUpload(ctx context.Context, taskID uint, u Upload) error {
	u.TaskID = taskID
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		return fmt.Errorf("taskmeta: append upload: %w", err)
	}
	return nil
}

// RecordUpload implements outputsink.UploadRecorder, adapting the sink's
// call shape to AppendUpload.
func (s *Store) RecordUpload(ctx context.Context, taskID uint, bucket, endpoint, key string, size int64, uploadedAt time.Time) error {
	return s.AppendUpload(ctx, taskID, Upload{
		S3Key:      key,
		S3Bucket:   bucket,
		S3Endpoint: endpoint,
		SizeBytes:  size,
		UploadedAt: uploadedAt,
	})
}

// ListUploads returns every upload recorded for a task, oldest first.
func (s *Store) ListUploads(ctx context.Context, taskID uint) ([]Upload, error) {
	var uploads []Upload
	if err := s.db.WithContext(ctx).Where("task_id = ?", taskID).Order("id asc").Find(&uploads).Error; err != nil {
		return nil, err
	}
	return uploads, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
