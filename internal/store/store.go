// Package store persists the append-only session audit log.
package store

import (
	"context"
	"errors"

	"github.com/xiaot623/conclave/internal/domain"
)

// ErrAuditWriteFailed marks a finalize that could not be durably
// recorded; the session must not be reported as finalized.
var ErrAuditWriteFailed = errors.New("audit_write_failed")

// Store is the audit sink contract. Records are append-only; a session's
// history is the ordered sequence of its records.
type Store interface {
	Append(ctx context.Context, record *domain.SessionRecord) error
	Query(ctx context.Context, filter domain.RecordFilter) ([]domain.SessionRecord, error)
	Stats(ctx context.Context) ([]domain.DomainStats, error)
	Close() error
}
