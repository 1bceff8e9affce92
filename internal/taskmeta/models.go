// Package taskmeta is the Task Metadata Store: durable, queryable metadata
// about every task (status, data source, task type, params, upload
// history), backed by GORM over SQLite or PostgreSQL. Per-task progress
// (the queue contents) is deliberately NOT stored here; it lives in each
// task's own queuestore database file, per spec.md §3.
//
// Grounded on pkg/controlplane/store/gorm.go (dual-backend Config,
// ApplyDefaults/Validate, WAL pragma, AutoMigrate) and
// original_source/api-server/app/db/models.py (DataFetchingTask,
// S3FileUpload field semantics).
package taskmeta

import (
	"time"

	"github.com/marmos91/taskengine/internal/taskstate"
)

// Task mirrors original_source's DataFetchingTask row.
type Task struct {
	ID         uint             `gorm:"primaryKey"`
	Status     taskstate.Status `gorm:"type:varchar(16);not null;index"`
	DataSource string           `gorm:"type:varchar(64);not null;index"`
	TaskType   string           `gorm:"type:varchar(64);not null"`
	Params     []byte           `gorm:"type:blob"` // raw JSON object, nil if absent
	Uploads    []Upload         `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time        `gorm:"autoCreateTime"`
	UpdatedAt  time.Time        `gorm:"autoUpdateTime"`
}

// Upload mirrors original_source's S3FileUpload row: one segment uploaded
// to the object store as part of a task's output.
type Upload struct {
	ID         uint `gorm:"primaryKey"`
	TaskID     uint `gorm:"not null;index"`
	S3Key      string
	S3Bucket   string
	S3Endpoint string
	SizeBytes  int64
	UploadedAt time.Time `gorm:"autoCreateTime"`
}

// AllModels lists every model AutoMigrate must know about, matching the
// teacher's models.AllModels() convention.
func AllModels() []any {
	return []any{&Task{}, &Upload{}}
}
