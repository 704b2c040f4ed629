package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/newsloom/newsloom/pkg/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// RawItemRepo persists normalized source items.
type RawItemRepo struct {
	db DBTX
}

// NewRawItemRepo creates a repository bound to db.
func NewRawItemRepo(db DBTX) *RawItemRepo {
	return &RawItemRepo{db: db}
}

// WithTx returns a copy of the repository that issues statements on tx.
func (r *RawItemRepo) WithTx(tx pgx.Tx) *RawItemRepo {
	return &RawItemRepo{db: tx}
}

const rawItemColumns = `id, source_kind, source_id, title, body, url, author,
	published_at, fetched_at, source_metadata, vector_id::text`

// Save inserts a raw item and fills in its generated ID and fetch time.
// A second insert for the same (source_kind, source_id) returns
// ErrAlreadyExists.
func (r *RawItemRepo) Save(ctx context.Context, item *models.RawItem) error {
	if err := validateRawItem(item); err != nil {
		return err
	}

	metadata, err := json.Marshal(metadataOrEmpty(item.SourceMetadata))
	if err != nil {
		return fmt.Errorf("failed to encode source metadata: %w", err)
	}

	fetchedAt := item.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	err = r.db.QueryRow(ctx, `
		INSERT INTO raw_items (source_kind, source_id, title, body, url, author,
			published_at, fetched_at, source_metadata, vector_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::uuid)
		RETURNING id, fetched_at`,
		item.SourceKind, item.SourceID, item.Title, item.Body, item.URL,
		nullableString(item.Author), item.PublishedAt, fetchedAt, metadata,
		uuidOrNil(item.VectorID),
	).Scan(&item.ID, &item.FetchedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// ExistsBySourceID reports whether a raw item with the given source
// identity is already stored.
func (r *RawItemRepo) ExistsBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM raw_items WHERE source_kind = $1 AND source_id = $2
		)`, kind, sourceID).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

// GetBySourceID returns the raw item with the given source identity.
func (r *RawItemRepo) GetBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (*models.RawItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE source_kind = $1 AND source_id = $2`, kind, sourceID)
	item, err := scanRawItem(row)
	if err != nil {
		return nil, mapError(err)
	}
	return item, nil
}

// ListBySource returns raw items of one kind, newest fetch first.
func (r *RawItemRepo) ListBySource(ctx context.Context, kind models.SourceKind, limit, offset int) ([]models.RawItem, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+rawItemColumns+`
		FROM raw_items
		WHERE source_kind = $1
		ORDER BY fetched_at DESC, id DESC
		LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	items := make([]models.RawItem, 0, limit)
	for rows.Next() {
		item, err := scanRawItem(rows)
		if err != nil {
			return nil, mapError(err)
		}
		items = append(items, *item)
	}
	return items, mapError(rows.Err())
}

// AttachVectorID records the vector point backing a stored raw item.
func (r *RawItemRepo) AttachVectorID(ctx context.Context, kind models.SourceKind, sourceID string, vectorID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE raw_items SET vector_id = $3::uuid
		WHERE source_kind = $1 AND source_id = $2`,
		kind, sourceID, vectorID.String())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteBySourceID removes a raw item. Dependent processed and short-form
// rows cascade.
func (r *RawItemRepo) DeleteBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM raw_items WHERE source_kind = $1 AND source_id = $2`,
		kind, sourceID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByKind returns the number of stored raw items for one source kind.
func (r *RawItemRepo) CountByKind(ctx context.Context, kind models.SourceKind) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM raw_items WHERE source_kind = $1`, kind).Scan(&count)
	if err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// LatestFetchedAt returns the most recent fetch time for one source kind,
// or nil when nothing is stored yet.
func (r *RawItemRepo) LatestFetchedAt(ctx context.Context, kind models.SourceKind) (*time.Time, error) {
	var latest *time.Time
	err := r.db.QueryRow(ctx, `
		SELECT max(fetched_at) FROM raw_items WHERE source_kind = $1`, kind).Scan(&latest)
	if err != nil {
		return nil, mapError(err)
	}
	return latest, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawItem(row rowScanner) (*models.RawItem, error) {
	var (
		item     models.RawItem
		author   *string
		metadata []byte
		vectorID *string
	)
	err := row.Scan(&item.ID, &item.SourceKind, &item.SourceID, &item.Title,
		&item.Body, &item.URL, &author, &item.PublishedAt, &item.FetchedAt,
		&metadata, &vectorID)
	if err != nil {
		return nil, err
	}
	if author != nil {
		item.Author = *author
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.SourceMetadata); err != nil {
			return nil, fmt.Errorf("failed to decode source metadata: %w", err)
		}
	}
	if vectorID != nil {
		id, err := uuid.Parse(*vectorID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse vector id: %w", err)
		}
		item.VectorID = &id
	}
	return &item, nil
}

func validateRawItem(item *models.RawItem) error {
	if item == nil {
		return NewValidationError("item", "raw item is required")
	}
	if !item.SourceKind.Valid() {
		return NewValidationError("source_kind", fmt.Sprintf("unknown source kind %q", item.SourceKind))
	}
	if item.SourceID == "" {
		return NewValidationError("source_id", "source id is required")
	}
	if item.Title == "" {
		return NewValidationError("title", "title is required")
	}
	if item.URL == "" {
		return NewValidationError("url", "url is required")
	}
	return nil
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func uuidOrNil(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
