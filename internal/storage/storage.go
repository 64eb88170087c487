// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"lettercast/internal/model"
)

// Sentinel errors returned by Storage implementations.
var (
	ErrDuplicate         = errors.New("url already stored")
	ErrNotFound          = errors.New("item not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StatusUpdate carries the optional fields written alongside a status change.
type StatusUpdate struct {
	ErrorMsg  *string
	AudioPath *string
}

// Storage is the interface for all persistence operations.
type Storage interface {
	IsDuplicate(ctx context.Context, url string) (bool, error)
	Save(ctx context.Context, item *model.CollectedItem) (int64, error)
	Get(ctx context.Context, id int64) (*model.CollectedItem, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status, upd StatusUpdate) error
	MarkDelivered(ctx context.Context, id int64) error

	GetPending(ctx context.Context) ([]model.CollectedItem, error)
	GetCompletedWithoutDelivery(ctx context.Context) ([]model.CollectedItem, error)
	GetRecentCount(ctx context.Context, hours int) (int, error)

	Close() error
}

// URLHash returns the hex SHA-256 digest used as the dedup key for a URL.
func URLHash(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
