// Package store provides the persistence layer for raw, processed, and
// short-form items on top of PostgreSQL. Repositories hold a DBTX so the
// same query code runs against the pool or inside a transaction.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsloom/newsloom/pkg/models"
)

// DBTX is the subset of pgx operations repositories need. Both
// *pgxpool.Pool and pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	Raw       *RawItemRepo
	Processed *ProcessedItemRepo
	ShortForm *ShortFormRepo
}

// New creates a Store with repositories bound to the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		Raw:       NewRawItemRepo(pool),
		Processed: NewProcessedItemRepo(pool),
		ShortForm: NewShortFormRepo(pool),
	}
}

// WithinTx runs fn inside a transaction. The transaction is rolled back
// on error or panic and committed otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FinalizeItem persists the editorial output for a stored raw item in a
// single transaction: the vector reference on the raw row, the processed
// verdict, and the optional short-form rendering. Either every row lands
// or none do.
func (s *Store) FinalizeItem(ctx context.Context, kind models.SourceKind, sourceID string, vectorID *uuid.UUID, processed *models.ProcessedItem, short *models.ShortFormItem) error {
	if processed == nil {
		return NewValidationError("processed", "processed item is required")
	}
	return s.WithinTx(ctx, func(tx pgx.Tx) error {
		if vectorID != nil {
			if err := s.Raw.WithTx(tx).AttachVectorID(ctx, kind, sourceID, *vectorID); err != nil {
				return fmt.Errorf("failed to attach vector id: %w", err)
			}
		}
		if err := s.Processed.WithTx(tx).Save(ctx, processed); err != nil {
			return fmt.Errorf("failed to save processed item: %w", err)
		}
		if short != nil {
			if err := s.ShortForm.WithTx(tx).Save(ctx, short); err != nil {
				return fmt.Errorf("failed to save short-form item: %w", err)
			}
		}
		return nil
	})
}
