// Package dedup detects semantic near-duplicates across ingested items by
// embedding their text and searching the per-kind vector collection. It also
// owns vectorization of accepted items, so the collection only ever contains
// points the pipeline decided to keep.
package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/vector"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the vector-store surface the service needs.
type Index interface {
	Upsert(ctx context.Context, collection string, id uuid.UUID, vec []float32, payload map[string]any) error
	Search(ctx context.Context, collection string, vec []float32, limit int, scoreThreshold float32) ([]vector.Hit, error)
	Health(ctx context.Context) error
}

// Service checks new items against the vector index and remembers accepted
// ones. Duplicate checks are scoped to the item's own source kind;
// cross-kind near-duplicates are intentionally not considered.
type Service struct {
	embedder  Embedder
	index     Index
	threshold float32
	logger    *slog.Logger
}

// New builds a dedup service. threshold is the cosine similarity at or above
// which an item counts as a duplicate.
func New(embedder Embedder, index Index, threshold float64) *Service {
	return &Service{
		embedder:  embedder,
		index:     index,
		threshold: float32(threshold),
		logger:    slog.With("component", "dedup"),
	}
}

// PointID derives the deterministic vector point id for an item. The same
// kind and source id always map to the same UUID, so re-running the pipeline
// over an item overwrites its point instead of accumulating copies.
func PointID(kind models.SourceKind, sourceID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(string(kind)+":"+sourceID))
}

// CheckDuplicate reports whether text is a semantic duplicate of an item
// already remembered under the same source kind. On embedding or search
// failure it returns not-duplicate together with the error so callers can
// keep ingesting while the backends are down.
func (s *Service) CheckDuplicate(ctx context.Context, text string, kind models.SourceKind) (bool, string, float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Warn("embedding failed, skipping duplicate check", "kind", kind, "error", err)
		return false, "", 0, fmt.Errorf("dedup: embed: %w", err)
	}

	// Only the single best match matters against a threshold this strict.
	hits, err := s.index.Search(ctx, kind.Collection(), vec, 1, s.threshold)
	if err != nil {
		s.logger.Warn("vector search failed, skipping duplicate check", "kind", kind, "error", err)
		return false, "", 0, fmt.Errorf("dedup: search: %w", err)
	}
	if len(hits) == 0 {
		return false, "", 0, nil
	}

	hit := hits[0]
	s.logger.Info("semantic duplicate found",
		"kind", kind,
		"duplicate_of", hit.Payload["source_id"],
		"similarity", hit.Score)
	return true, hit.Payload["source_id"], hit.Score, nil
}

// Remember embeds text and upserts it into the kind's collection under the
// deterministic point id. Failure is non-fatal: the item stays in the record
// store either way, it just will not participate in future duplicate checks.
func (s *Service) Remember(ctx context.Context, text, sourceID string, metadata map[string]any, kind models.SourceKind) (uuid.UUID, bool) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logger.Error("embedding failed, item not vectorized", "kind", kind, "source_id", sourceID, "error", err)
		return uuid.Nil, false
	}

	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["source_id"] = sourceID

	id := PointID(kind, sourceID)
	if err := s.index.Upsert(ctx, kind.Collection(), id, vec, payload); err != nil {
		s.logger.Error("vector upsert failed, item not vectorized", "kind", kind, "source_id", sourceID, "error", err)
		return uuid.Nil, false
	}
	return id, true
}

// Healthy reports whether the vector backend answers.
func (s *Service) Healthy(ctx context.Context) bool {
	return s.index.Health(ctx) == nil
}
