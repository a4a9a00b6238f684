// Package store records finished transfers in a local sqlite database so an
// operator can audit what the server received and what failed.
package store

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Transfer statuses.
const (
	StatusReceived = "received"
	StatusFailed   = "failed"
)

// Transfer is one row per attempted file receive.
type Transfer struct {
	ID           uint `gorm:"primaryKey"`
	Peer         string
	Name         string
	Path         string
	DeclaredSize int64
	Bytes        int64
	Status       string
	Error        string
	StartedAt    int64
	DurationMS   int64
}

// Open opens (and migrates) the transfer database at path.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening transfer database: %w", err)
	}

	if err := db.AutoMigrate(&Transfer{}); err != nil {
		return nil, fmt.Errorf("migrating transfer database: %w", err)
	}

	return db, nil
}

// TransferStore provides access to recorded transfers.
type TransferStore struct {
	db *gorm.DB
}

func NewTransferStore(db *gorm.DB) *TransferStore {
	return &TransferStore{db: db}
}

// RecordReceived stores a successfully finalized transfer.
func (ts *TransferStore) RecordReceived(peer, name, path string, declaredSize, bytes int64, startedAt time.Time) error {
	return ts.record(&Transfer{
		Peer:         peer,
		Name:         name,
		Path:         path,
		DeclaredSize: declaredSize,
		Bytes:        bytes,
		Status:       StatusReceived,
		StartedAt:    startedAt.Unix(),
		DurationMS:   time.Since(startedAt).Milliseconds(),
	})
}

// RecordFailed stores a transfer that was aborted and discarded.
func (ts *TransferStore) RecordFailed(peer, name string, bytes int64, startedAt time.Time, cause error) error {
	row := &Transfer{
		Peer:       peer,
		Name:       name,
		Bytes:      bytes,
		Status:     StatusFailed,
		StartedAt:  startedAt.Unix(),
		DurationMS: time.Since(startedAt).Milliseconds(),
	}
	if cause != nil {
		row.Error = cause.Error()
	}
	return ts.record(row)
}

func (ts *TransferStore) record(row *Transfer) error {
	if err := ts.db.Create(row).Error; err != nil {
		return fmt.Errorf("recording transfer: %w", err)
	}
	return nil
}

// Recent returns up to limit transfers, newest first.
func (ts *TransferStore) Recent(limit int) ([]Transfer, error) {
	var rows []Transfer
	if err := ts.db.Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	return rows, nil
}
