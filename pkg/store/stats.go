package store

import (
	"context"
	"fmt"
	"time"

	"github.com/newsloom/newsloom/pkg/models"
)

// KindStats aggregates row counts for one source kind.
type KindStats struct {
	SourceKind      models.SourceKind `json:"source_kind"`
	RawItems        int64             `json:"raw_items"`
	ProcessedItems  int64             `json:"processed_items"`
	RelevantItems   int64             `json:"relevant_items"`
	ShortFormItems  int64             `json:"short_form_items"`
	PublishedItems  int64             `json:"published_items"`
	LatestFetchedAt *time.Time        `json:"latest_fetched_at,omitempty"`
}

// Stats is the storage-wide aggregation returned by the stats endpoint.
type Stats struct {
	Kinds          []KindStats `json:"kinds"`
	TotalRaw       int64       `json:"total_raw"`
	TotalProcessed int64       `json:"total_processed"`
	TotalRelevant  int64       `json:"total_relevant"`
	TotalShortForm int64       `json:"total_short_form"`
	TotalPublished int64       `json:"total_published"`
}

// CollectStats gathers per-kind and total counts across the three tables.
// Kinds with no rows still appear with zero counts so the response shape
// is stable.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Kinds: make([]KindStats, 0, len(models.AllSourceKinds))}

	for _, kind := range models.AllSourceKinds {
		ks := KindStats{SourceKind: kind}

		raw, err := s.Raw.CountByKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to count raw items for %s: %w", kind, err)
		}
		ks.RawItems = raw

		latest, err := s.Raw.LatestFetchedAt(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to find latest fetch for %s: %w", kind, err)
		}
		ks.LatestFetchedAt = latest

		processed, relevant, err := s.Processed.CountByKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to count processed items for %s: %w", kind, err)
		}
		ks.ProcessedItems = processed
		ks.RelevantItems = relevant

		shortForm, published, err := s.ShortForm.CountByKind(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to count short-form items for %s: %w", kind, err)
		}
		ks.ShortFormItems = shortForm
		ks.PublishedItems = published

		stats.Kinds = append(stats.Kinds, ks)
		stats.TotalRaw += raw
		stats.TotalProcessed += processed
		stats.TotalRelevant += relevant
		stats.TotalShortForm += shortForm
		stats.TotalPublished += published
	}

	return stats, nil
}
