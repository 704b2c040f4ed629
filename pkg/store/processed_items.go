package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/newsloom/newsloom/pkg/models"
)

// ProcessedItemRepo persists editorial verdicts. Each raw item has at most
// one processed row, enforced by a unique constraint.
type ProcessedItemRepo struct {
	db DBTX
}

// NewProcessedItemRepo creates a repository bound to db.
func NewProcessedItemRepo(db DBTX) *ProcessedItemRepo {
	return &ProcessedItemRepo{db: db}
}

// WithTx returns a copy of the repository that issues statements on tx.
func (r *ProcessedItemRepo) WithTx(tx pgx.Tx) *ProcessedItemRepo {
	return &ProcessedItemRepo{db: tx}
}

const processedItemColumns = `id, source_kind, source_id, is_relevant,
	relevance_score, relevance_reason, editorial_title, editorial_teaser,
	editorial_body, image_prompt, content_type, model_name, processing_ms,
	processed_at`

// Save inserts an editorial verdict and fills in its generated ID and
// timestamp. A second verdict for the same raw item returns
// ErrAlreadyExists; a verdict without a stored raw item fails the foreign
// key.
func (r *ProcessedItemRepo) Save(ctx context.Context, item *models.ProcessedItem) error {
	if err := validateProcessedItem(item); err != nil {
		return err
	}

	processedAt := item.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO processed_items (source_kind, source_id, is_relevant,
			relevance_score, relevance_reason, editorial_title, editorial_teaser,
			editorial_body, image_prompt, content_type, model_name, processing_ms,
			processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, processed_at`,
		item.SourceKind, item.SourceID, item.IsRelevant, item.RelevanceScore,
		item.RelevanceReason, nullableString(item.EditorialTitle),
		nullableString(item.EditorialTeaser), nullableString(item.EditorialBody),
		nullableString(item.ImagePrompt), nullableString(string(item.ContentType)),
		item.ModelName, item.ProcessingMS, processedAt,
	).Scan(&item.ID, &item.ProcessedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetBySourceID returns the editorial verdict for one raw item.
func (r *ProcessedItemRepo) GetBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (*models.ProcessedItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+processedItemColumns+`
		FROM processed_items
		WHERE source_kind = $1 AND source_id = $2`, kind, sourceID)
	item, err := scanProcessedItem(row)
	if err != nil {
		return nil, mapError(err)
	}
	return item, nil
}

// ListBySource returns verdicts of one kind, newest first.
func (r *ProcessedItemRepo) ListBySource(ctx context.Context, kind models.SourceKind, limit, offset int) ([]models.ProcessedItem, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+processedItemColumns+`
		FROM processed_items
		WHERE source_kind = $1
		ORDER BY processed_at DESC, id DESC
		LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	items := make([]models.ProcessedItem, 0, limit)
	for rows.Next() {
		item, err := scanProcessedItem(rows)
		if err != nil {
			return nil, mapError(err)
		}
		items = append(items, *item)
	}
	return items, mapError(rows.Err())
}

// CountByKind returns total and relevant verdict counts for one source kind.
func (r *ProcessedItemRepo) CountByKind(ctx context.Context, kind models.SourceKind) (total, relevant int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE is_relevant)
		FROM processed_items
		WHERE source_kind = $1`, kind).Scan(&total, &relevant)
	if err != nil {
		return 0, 0, mapError(err)
	}
	return total, relevant, nil
}

func scanProcessedItem(row rowScanner) (*models.ProcessedItem, error) {
	var (
		item        models.ProcessedItem
		title       *string
		teaser      *string
		body        *string
		imagePrompt *string
		contentType *string
	)
	err := row.Scan(&item.ID, &item.SourceKind, &item.SourceID, &item.IsRelevant,
		&item.RelevanceScore, &item.RelevanceReason, &title, &teaser, &body,
		&imagePrompt, &contentType, &item.ModelName, &item.ProcessingMS,
		&item.ProcessedAt)
	if err != nil {
		return nil, err
	}
	if title != nil {
		item.EditorialTitle = *title
	}
	if teaser != nil {
		item.EditorialTeaser = *teaser
	}
	if body != nil {
		item.EditorialBody = *body
	}
	if imagePrompt != nil {
		item.ImagePrompt = *imagePrompt
	}
	if contentType != nil {
		item.ContentType = models.ContentType(*contentType)
	}
	return &item, nil
}

func validateProcessedItem(item *models.ProcessedItem) error {
	if item == nil {
		return NewValidationError("item", "processed item is required")
	}
	if !item.SourceKind.Valid() {
		return NewValidationError("source_kind", fmt.Sprintf("unknown source kind %q", item.SourceKind))
	}
	if item.SourceID == "" {
		return NewValidationError("source_id", "source id is required")
	}
	if item.RelevanceScore < 0 || item.RelevanceScore > 1 {
		return NewValidationError("relevance_score", "score must be within [0, 1]")
	}
	return nil
}
