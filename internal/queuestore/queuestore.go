// Package queuestore implements the per-task durable queue database: a
// single embedded sqlite file holding four FIFO tables (inputs, successes,
// failures, inputs-without-output) with deferred-commit pop/ack/restore
// semantics so a crash between pop and ack leaves the popped row in place.
package queuestore

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Name identifies one of the four per-task queues.
type Name string

const (
	Inputs            Name = "unique_queue_inputs"
	Successes         Name = "queue_successes"
	Failures          Name = "queue_failures"
	InputsWithoutData Name = "queue_inputs_without_output"
)

// row is the physical shape shared by all four tables.
type row struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Data      []byte `gorm:"type:blob;not null"`
	DataHash  string `gorm:"size:64;index"`
	Timestamp time.Time
}

type inputRow struct {
	row
}

func (inputRow) TableName() string { return string(Inputs) }

type successRow struct{ row }

func (successRow) TableName() string { return string(Successes) }

type failureRow struct{ row }

func (failureRow) TableName() string { return string(Failures) }

type noDataRow struct{ row }

func (noDataRow) TableName() string { return string(InputsWithoutData) }

func tableNameFor(q Name) string { return string(q) }

// QueueItem is the caller-facing representation of one row.
type QueueItem struct {
	ID        uint
	Data      json.RawMessage
	Timestamp time.Time
}

// ErrItemNotFound is returned by PeekNext/PopNext when the queue is empty.
var ErrItemNotFound = errors.New("queuestore: queue is empty")

// Store is the per-task embedded queue database described in spec.md §4.1.
type Store struct {
	db   *gorm.DB
	path string

	mu      sync.Mutex
	pending map[Name][]uint // ids popped since the last Ack, per queue
}

// Open opens (creating if necessary) the queue database file for one task.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("queuestore: create dir: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("queuestore: open %q: %w", path, err)
	}

	if err := db.AutoMigrate(&inputRow{}, &successRow{}, &failureRow{}, &noDataRow{}); err != nil {
		return nil, fmt.Errorf("queuestore: migrate: %w", err)
	}
	if err := db.Exec(fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_hash ON %s(data_hash)",
		Inputs, Inputs)).Error; err != nil {
		return nil, fmt.Errorf("queuestore: unique index: %w", err)
	}

	return &Store{
		db:      db,
		path:    path,
		pending: make(map[Name][]uint),
	}, nil
}

func hashOf(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

// Append inserts payload into queue. For Inputs, a payload already present
// (by content hash) is silently ignored.
func (s *Store) Append(queue Name, payload json.RawMessage) error {
	r := row{Data: []byte(payload), DataHash: hashOf(payload), Timestamp: time.Now()}

	var result *gorm.DB
	switch queue {
	case Inputs:
		var count int64
		if err := s.db.Table(tableNameFor(Inputs)).Where("data_hash = ?", r.DataHash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		result = s.db.Create(&inputRow{row: r})
	case Successes:
		result = s.db.Create(&successRow{row: r})
	case Failures:
		result = s.db.Create(&failureRow{row: r})
	case InputsWithoutData:
		result = s.db.Create(&noDataRow{row: r})
	default:
		return fmt.Errorf("queuestore: unknown queue %q", queue)
	}
	return result.Error
}

// PeekNext returns the lowest-id row in queue without marking it removed.
func (s *Store) PeekNext(queue Name) (*QueueItem, error) {
	var r row
	err := s.db.Table(tableNameFor(queue)).Order("id ASC").Limit(1).Scan(&r).Error
	if err != nil {
		return nil, err
	}
	if r.ID == 0 {
		return nil, ErrItemNotFound
	}
	return &QueueItem{ID: r.ID, Data: json.RawMessage(r.Data), Timestamp: r.Timestamp}, nil
}

// PopNext returns the lowest-id row and marks it removed, deferring the
// actual delete until Ack. A crash before Ack leaves the row in place.
func (s *Store) PopNext(queue Name) (*QueueItem, error) {
	item, err := s.PeekNext(queue)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pending[queue] = append(s.pending[queue], item.ID)
	s.mu.Unlock()

	return item, nil
}

// PopNextN pops up to n rows in ascending id order. It may return fewer than
// n items if the queue is shorter.
func (s *Store) PopNextN(queue Name, n int) ([]QueueItem, error) {
	var rows []row
	if err := s.db.Table(tableNameFor(queue)).Order("id ASC").Limit(n).Scan(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(rows))
	ids := make([]uint, 0, len(rows))
	for _, r := range rows {
		items = append(items, QueueItem{ID: r.ID, Data: json.RawMessage(r.Data), Timestamp: r.Timestamp})
		ids = append(ids, r.ID)
	}

	s.mu.Lock()
	s.pending[queue] = append(s.pending[queue], ids...)
	s.mu.Unlock()

	return items, nil
}

// Ack commits the removal(s) since the previous Ack (or Restore) for queue.
func (s *Store) Ack(queue Name) error {
	s.mu.Lock()
	ids := s.pending[queue]
	delete(s.pending, queue)
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	return s.db.Table(tableNameFor(queue)).Where("id IN ?", ids).Delete(nil).Error
}

// Restore discards any uncommitted removals for queue, rolling the popped
// rows back into the queue (they were never physically deleted).
func (s *Store) Restore(queue Name) error {
	s.mu.Lock()
	delete(s.pending, queue)
	s.mu.Unlock()
	return nil
}

// Page returns items with id >= cursor (or from the start if cursor is nil)
// in ascending order, up to limit items, the next cursor (or nil if
// exhausted), and the total row count in queue.
func (s *Store) Page(queue Name, cursor *uint, limit int) (items []QueueItem, nextCursor *uint, total int64, err error) {
	if err = s.db.Table(tableNameFor(queue)).Count(&total).Error; err != nil {
		return nil, nil, 0, err
	}

	q := s.db.Table(tableNameFor(queue)).Order("id ASC").Limit(limit)
	if cursor != nil {
		q = q.Where("id >= ?", *cursor)
	}

	var rows []row
	if err = q.Scan(&rows).Error; err != nil {
		return nil, nil, 0, err
	}

	items = make([]QueueItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, QueueItem{ID: r.ID, Data: json.RawMessage(r.Data), Timestamp: r.Timestamp})
	}

	if len(items) == limit {
		var next row
		if err = s.db.Table(tableNameFor(queue)).Where("id > ?", items[len(items)-1].ID).Order("id ASC").Limit(1).Scan(&next).Error; err != nil {
			return nil, nil, 0, err
		}
		if next.ID != 0 {
			id := next.ID
			nextCursor = &id
		}
	}

	return items, nextCursor, total, nil
}

// DeleteByIDs unconditionally deletes the given ids from queue and returns
// the number removed.
func (s *Store) DeleteByIDs(queue Name, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := s.db.Table(tableNameFor(queue)).Where("id IN ?", ids).Delete(nil)
	return result.RowsAffected, result.Error
}

// Count returns the number of rows currently in queue.
func (s *Store) Count(queue Name) (int64, error) {
	var count int64
	err := s.db.Table(tableNameFor(queue)).Count(&count).Error
	return count, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Path returns the filesystem path of the underlying database file.
func (s *Store) Path() string { return s.path }
