package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/newsloom/newsloom/pkg/models"
)

// ShortFormRepo persists channel-ready renderings of relevant items.
type ShortFormRepo struct {
	db DBTX
}

// NewShortFormRepo creates a repository bound to db.
func NewShortFormRepo(db DBTX) *ShortFormRepo {
	return &ShortFormRepo{db: db}
}

// WithTx returns a copy of the repository that issues statements on tx.
func (r *ShortFormRepo) WithTx(tx pgx.Tx) *ShortFormRepo {
	return &ShortFormRepo{db: tx}
}

const shortFormColumns = `id, source_kind, source_id, title, body, hashtags,
	formatted, char_count, created_at, published_at, platform_message_id,
	is_published`

// Save inserts a short-form rendering and fills in its generated ID and
// creation time. CharCount is derived from Formatted, never trusted from
// the caller.
func (r *ShortFormRepo) Save(ctx context.Context, item *models.ShortFormItem) error {
	if err := validateShortFormItem(item); err != nil {
		return err
	}

	item.CharCount = len([]rune(item.Formatted))

	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	hashtags := item.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO short_form_items (source_kind, source_id, title, body,
			hashtags, formatted, char_count, created_at, published_at,
			platform_message_id, is_published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at`,
		item.SourceKind, item.SourceID, item.Title, item.Body, hashtags,
		item.Formatted, item.CharCount, createdAt, item.PublishedAt,
		item.PlatformMessageID, item.IsPublished,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	return nil
}

// GetBySourceID returns the short-form rendering for one raw item.
func (r *ShortFormRepo) GetBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (*models.ShortFormItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+shortFormColumns+`
		FROM short_form_items
		WHERE source_kind = $1 AND source_id = $2`, kind, sourceID)
	item, err := scanShortFormItem(row)
	if err != nil {
		return nil, mapError(err)
	}
	return item, nil
}

// ListBySource returns short-form items of one kind, newest first.
func (r *ShortFormRepo) ListBySource(ctx context.Context, kind models.SourceKind, limit, offset int) ([]models.ShortFormItem, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+shortFormColumns+`
		FROM short_form_items
		WHERE source_kind = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, kind, limit, offset)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	items := make([]models.ShortFormItem, 0, limit)
	for rows.Next() {
		item, err := scanShortFormItem(rows)
		if err != nil {
			return nil, mapError(err)
		}
		items = append(items, *item)
	}
	return items, mapError(rows.Err())
}

// MarkPublished records a successful channel post. Both the publish time
// and the platform message ID are set together so the published flag never
// disagrees with them.
func (r *ShortFormRepo) MarkPublished(ctx context.Context, kind models.SourceKind, sourceID string, platformMessageID int64, publishedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE short_form_items
		SET published_at = $3, platform_message_id = $4, is_published = TRUE
		WHERE source_kind = $1 AND source_id = $2`,
		kind, sourceID, publishedAt, platformMessageID)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountByKind returns total and published counts for one source kind.
func (r *ShortFormRepo) CountByKind(ctx context.Context, kind models.SourceKind) (total, published int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE is_published)
		FROM short_form_items
		WHERE source_kind = $1`, kind).Scan(&total, &published)
	if err != nil {
		return 0, 0, mapError(err)
	}
	return total, published, nil
}

func scanShortFormItem(row rowScanner) (*models.ShortFormItem, error) {
	var item models.ShortFormItem
	err := row.Scan(&item.ID, &item.SourceKind, &item.SourceID, &item.Title,
		&item.Body, &item.Hashtags, &item.Formatted, &item.CharCount,
		&item.CreatedAt, &item.PublishedAt, &item.PlatformMessageID,
		&item.IsPublished)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func validateShortFormItem(item *models.ShortFormItem) error {
	if item == nil {
		return NewValidationError("item", "short-form item is required")
	}
	if !item.SourceKind.Valid() {
		return NewValidationError("source_kind", fmt.Sprintf("unknown source kind %q", item.SourceKind))
	}
	if item.SourceID == "" {
		return NewValidationError("source_id", "source id is required")
	}
	if item.Formatted == "" {
		return NewValidationError("formatted", "formatted text is required")
	}
	if n := len([]rune(item.Formatted)); n > models.MaxShortFormChars {
		return NewValidationError("formatted", fmt.Sprintf("formatted text is %d chars, limit is %d", n, models.MaxShortFormChars))
	}
	if n := len(item.Hashtags); n < 3 || n > 5 {
		return NewValidationError("hashtags", "between 3 and 5 hashtags are required")
	}
	if (item.PublishedAt != nil) != (item.PlatformMessageID != nil) {
		return NewValidationError("published_at", "published_at and platform_message_id must be set together")
	}
	if item.IsPublished != (item.PublishedAt != nil && item.PlatformMessageID != nil) {
		return NewValidationError("is_published", "is_published must match publication fields")
	}
	return nil
}
