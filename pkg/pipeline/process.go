package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/editorial"
	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

const minTitleRunes = 3

// ProcessItem runs one item through the full, strictly ordered journey:
// validate, exact-duplicate gate, raw insert, backend health gate, length
// gate, semantic-duplicate gate (with rollback), vectorize, editorial, and
// one final transaction for the processed output. A returned error means the
// item counts against the run's error counter; the run continues with the
// next item.
func (p *Pipeline) ProcessItem(ctx context.Context, item models.RawItem, params models.JobParams) (ItemResult, error) {
	res, done, err := p.admitItem(ctx, &item, params)
	if done || err != nil {
		return res, err
	}
	return p.enrichItem(ctx, item, params)
}

// admitItem covers the sequential half of the journey: validation, the
// exact-duplicate gate, the raw insert, and the backend health gate. done
// reports that the journey ended here. On success the item carries its
// generated ID and fetch time.
func (p *Pipeline) admitItem(ctx context.Context, item *models.RawItem, params models.JobParams) (ItemResult, bool, error) {
	if cause := validateItem(item); cause != "" {
		p.logger.Warn("invalid item dropped",
			"kind", item.SourceKind, "source_id", item.SourceID, "cause", cause)
		return ItemResult{Reason: ReasonInvalid}, true, nil
	}

	exists, err := p.deps.Raw.ExistsBySourceID(ctx, item.SourceKind, item.SourceID)
	if err != nil {
		return ItemResult{}, true, fmt.Errorf("duplicate check: %w", err)
	}
	if exists {
		p.logger.Debug("exact duplicate",
			"kind", item.SourceKind, "source_id", item.SourceID)
		return ItemResult{Reason: ReasonDuplicateID}, true, nil
	}

	if err := p.deps.Raw.Save(ctx, item); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Lost the insert race to a concurrent run.
			p.logger.Debug("exact duplicate on insert",
				"kind", item.SourceKind, "source_id", item.SourceID)
			return ItemResult{Reason: ReasonDuplicateID}, true, nil
		}
		return ItemResult{}, true, fmt.Errorf("persist raw: %w", err)
	}

	if !params.EnableLLM && !params.EnableDeduplication {
		return ItemResult{Saved: true}, true, nil
	}

	if p.deps.Health == nil || p.deps.Health.Health(ctx) != nil {
		p.logger.Warn("enrichment backend unreachable, saved without enrichment",
			"kind", item.SourceKind, "source_id", item.SourceID)
		return ItemResult{Saved: true, Reason: ReasonServicesUnavailable}, true, nil
	}

	return ItemResult{Saved: true}, false, nil
}

// enrichItem covers the parallelizable half: the length gate, the semantic
// gate, vectorization, editorial review, and the final transactional write.
// The raw record is already persisted when this runs.
func (p *Pipeline) enrichItem(ctx context.Context, item models.RawItem, params models.JobParams) (ItemResult, error) {
	text := item.ContentText()
	if utf8.RuneCountInString(text) < p.cfg.MinContentLength {
		p.logger.Debug("content below minimum, enrichment skipped",
			"kind", item.SourceKind, "source_id", item.SourceID,
			"chars", utf8.RuneCountInString(text))
		return ItemResult{Saved: true, Reason: ReasonTooShort}, nil
	}

	if params.EnableDeduplication && p.deps.Dedup != nil {
		dup, of, sim, err := p.deps.Dedup.CheckDuplicate(ctx, text, item.SourceKind)
		if err != nil {
			// Backend hiccup: treat as not-duplicate and keep going.
			p.logger.Warn("duplicate check unavailable, continuing",
				"kind", item.SourceKind, "source_id", item.SourceID, "error", err)
		}
		if dup {
			if err := p.deps.Raw.DeleteBySourceID(ctx, item.SourceKind, item.SourceID); err != nil {
				return ItemResult{}, fmt.Errorf("roll back semantic duplicate: %w", err)
			}
			p.logger.Info("semantic duplicate rolled back",
				"kind", item.SourceKind, "source_id", item.SourceID,
				"duplicate_of", of, "similarity", sim)
			return ItemResult{Reason: ReasonSemanticDuplicate, DuplicateOf: of, Similarity: sim}, nil
		}
	}

	var vectorID *uuid.UUID
	if params.EnableDeduplication && p.deps.Dedup != nil {
		if id, ok := p.deps.Dedup.Remember(ctx, text, item.SourceID, rememberPayload(item), item.SourceKind); ok {
			vectorID = &id
		}
	}

	var (
		processed *models.ProcessedItem
		short     *models.ShortFormItem
		reviewed  bool
	)
	if params.EnableLLM && p.deps.Editorial != nil {
		processed, short, reviewed = p.review(ctx, item)
	}

	if processed != nil {
		err := p.deps.Finalizer.FinalizeItem(ctx, item.SourceKind, item.SourceID, vectorID, processed, short)
		if errors.Is(err, store.ErrAlreadyExists) {
			// A concurrent worker finalized this source id first.
			p.logger.Warn("finalize conflict, keeping the earlier result",
				"kind", item.SourceKind, "source_id", item.SourceID)
			return ItemResult{Saved: true, Reason: ReasonDuplicateID}, nil
		}
		if err != nil {
			return ItemResult{}, fmt.Errorf("finalize: %w", err)
		}
		return ItemResult{
			Saved:              true,
			EditorialProcessed: reviewed,
			ShortFormCreated:   short != nil,
		}, nil
	}

	if vectorID != nil {
		if err := p.deps.Raw.AttachVectorID(ctx, item.SourceKind, item.SourceID, *vectorID); err != nil {
			return ItemResult{}, fmt.Errorf("attach vector id: %w", err)
		}
	}
	return ItemResult{Saved: true}, nil
}

// review turns the editorial verdict into persistable rows. A failed review
// still yields a processed row: the failure is recorded on the item instead
// of aborting it. reviewed reports whether the model actually answered.
func (p *Pipeline) review(ctx context.Context, item models.RawItem) (processed *models.ProcessedItem, short *models.ShortFormItem, reviewed bool) {
	verdict, err := p.deps.Editorial.Review(ctx, item)
	if err != nil {
		p.logger.Warn("editorial review failed",
			"kind", item.SourceKind, "source_id", item.SourceID, "error", err)
		return &models.ProcessedItem{
			SourceKind:      item.SourceKind,
			SourceID:        item.SourceID,
			IsRelevant:      false,
			RelevanceReason: "editorial failed: " + err.Error(),
			ProcessedAt:     time.Now().UTC(),
		}, nil, false
	}

	processed = processedFromVerdict(verdict, item)

	if verdict.IsNews && strings.TrimSpace(verdict.RewrittenPost) != "" {
		sf, err := p.deps.Editorial.RenderShortForm(ctx, verdict)
		if err != nil {
			p.logger.Warn("short-form rendering failed",
				"kind", item.SourceKind, "source_id", item.SourceID, "error", err)
		} else {
			short = shortFormFromRender(sf, item)
		}
	}
	return processed, short, true
}

// processedFromVerdict maps a verdict onto the stored processed row. For
// irrelevant verdicts the editorial fields stay empty.
func processedFromVerdict(v editorial.Verdict, item models.RawItem) *models.ProcessedItem {
	processed := &models.ProcessedItem{
		SourceKind:      item.SourceKind,
		SourceID:        item.SourceID,
		IsRelevant:      v.IsNews,
		RelevanceScore:  v.RelevanceScore,
		RelevanceReason: v.RelevanceReason,
		ModelName:       v.ModelName,
		ProcessingMS:    v.ProcessingMS,
		ProcessedAt:     time.Now().UTC(),
	}
	if v.IsNews {
		processed.EditorialTitle = v.Title
		processed.EditorialTeaser = v.Teaser
		processed.EditorialBody = v.RewrittenPost
		processed.ImagePrompt = v.ImagePrompt
		processed.ContentType = v.ContentType
	}
	return processed
}

func shortFormFromRender(sf editorial.ShortForm, item models.RawItem) *models.ShortFormItem {
	return &models.ShortFormItem{
		SourceKind: item.SourceKind,
		SourceID:   item.SourceID,
		Title:      sf.Title,
		Body:       sf.Body,
		Hashtags:   sf.Hashtags,
		Formatted:  sf.Formatted,
		CharCount:  sf.CharCount,
		CreatedAt:  time.Now().UTC(),
	}
}

// rememberPayload is the vector-point payload: the item's identity fields
// plus whatever metadata the driver attached.
func rememberPayload(item models.RawItem) map[string]any {
	payload := make(map[string]any, len(item.SourceMetadata)+3)
	for k, v := range item.SourceMetadata {
		payload[k] = v
	}
	payload["title"] = item.Title
	payload["url"] = item.URL
	if item.Author != "" {
		payload["author"] = item.Author
	}
	return payload
}

// validateItem screens driver output before anything touches storage. An
// empty cause means the item is acceptable. Body length is not checked here;
// the length gate deals with thin content after the raw record is kept.
func validateItem(item *models.RawItem) string {
	switch {
	case !item.SourceKind.Valid():
		return "unknown source kind"
	case strings.TrimSpace(item.SourceID) == "":
		return "missing source id"
	case utf8.RuneCountInString(strings.TrimSpace(item.Title)) < minTitleRunes:
		return "title too short"
	}
	u, err := url.Parse(item.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "malformed url"
	}
	return ""
}
