// Package pipeline orchestrates one ingestion run: it drives a source driver,
// validates and persists each fetched item, gates semantic duplicates against
// the vector index, and hands surviving items to the editorial service. The
// per-item journey is strictly ordered; see ProcessItem.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/editorial"
	"github.com/newsloom/newsloom/pkg/ingest"
	"github.com/newsloom/newsloom/pkg/models"
)

// Reason explains why an item stopped short of full processing. An empty
// reason on a saved item means it went the whole way.
type Reason string

// Stop reasons, recorded in item results and session logs.
const (
	ReasonInvalid             Reason = "invalid"
	ReasonDuplicateID         Reason = "duplicate_id"
	ReasonServicesUnavailable Reason = "services_unavailable"
	ReasonTooShort            Reason = "too_short"
	ReasonSemanticDuplicate   Reason = "duplicate_semantic"
)

// ItemResult is the outcome of one item's journey. Saved reports that the
// raw record survived the run; a semantic duplicate is rolled back and ends
// up not saved.
type ItemResult struct {
	Saved              bool
	EditorialProcessed bool
	ShortFormCreated   bool
	Reason             Reason
	DuplicateOf        string
	Similarity         float32
}

// RawRecords is the raw-item persistence surface. *store.RawItemRepo
// satisfies it.
type RawRecords interface {
	ExistsBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (bool, error)
	Save(ctx context.Context, item *models.RawItem) error
	DeleteBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) error
	AttachVectorID(ctx context.Context, kind models.SourceKind, sourceID string, vectorID uuid.UUID) error
}

// Finalizer commits an item's editorial output and vector linkage in one
// transaction. *store.Store satisfies it.
type Finalizer interface {
	FinalizeItem(ctx context.Context, kind models.SourceKind, sourceID string, vectorID *uuid.UUID, processed *models.ProcessedItem, short *models.ShortFormItem) error
}

// Deduper is the semantic-duplicate surface. *dedup.Service satisfies it.
type Deduper interface {
	CheckDuplicate(ctx context.Context, text string, kind models.SourceKind) (bool, string, float32, error)
	Remember(ctx context.Context, text, sourceID string, metadata map[string]any, kind models.SourceKind) (uuid.UUID, bool)
}

// Editor produces editorial verdicts and short-form renderings.
// *editorial.Service satisfies it.
type Editor interface {
	Review(ctx context.Context, item models.RawItem) (editorial.Verdict, error)
	RenderShortForm(ctx context.Context, v editorial.Verdict) (editorial.ShortForm, error)
}

// HealthProber reports whether the enrichment backend answers. *llm.Client
// satisfies it; one probe covers embedding and generation since both live on
// the same server.
type HealthProber interface {
	Health(ctx context.Context) error
}

// RunLog streams run progress to the live log store. All calls are
// best-effort: a logging failure never affects the run.
type RunLog interface {
	CreateSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
	AddLog(ctx context.Context, entry models.LogEntry) error
}

// Deps are the collaborator surfaces of the orchestrator. Raw and Finalizer
// are required; a nil Dedup, Editorial, Health, or Logs disables the
// matching stage.
type Deps struct {
	Raw       RawRecords
	Finalizer Finalizer
	Dedup     Deduper
	Editorial Editor
	Health    HealthProber
	Logs      RunLog
}

// Pipeline drives items from the configured drivers through validation,
// persistence, deduplication, and editorial processing.
type Pipeline struct {
	drivers map[models.SourceKind]ingest.Driver
	deps    Deps
	cfg     config.PipelineConfig
	logger  *slog.Logger
}

// New builds the orchestrator over the configured drivers.
func New(drivers map[models.SourceKind]ingest.Driver, deps Deps, cfg config.PipelineConfig) *Pipeline {
	return &Pipeline{
		drivers: drivers,
		deps:    deps,
		cfg:     cfg,
		logger:  slog.With("component", "pipeline"),
	}
}

// Run executes one job: fetch items from the kind's driver, then process
// each in source order. Counters are strictly monotone; cancellation is
// honored at item boundaries. The returned counters are meaningful even when
// err is non-nil.
func (p *Pipeline) Run(ctx context.Context, kind models.SourceKind, params models.JobParams) (models.RunCounters, error) {
	var counters models.RunCounters

	driver, ok := p.drivers[kind]
	if !ok {
		return counters, fmt.Errorf("pipeline: no driver configured for source kind %q", kind)
	}

	sessionID := p.openSession(ctx)
	defer p.closeSession(sessionID)

	p.logger.Info("run started",
		"kind", kind,
		"session_id", sessionID,
		"max_items", params.MaxItems,
		"enable_llm", params.EnableLLM,
		"enable_deduplication", params.EnableDeduplication)
	p.sessionLog(ctx, sessionID, "INFO",
		fmt.Sprintf("run started: %s (llm=%t dedup=%t)", kind, params.EnableLLM, params.EnableDeduplication), nil)

	fetched, err := driver.FetchItems(ctx, ingest.FetchParams{MaxItems: params.MaxItems, Filter: params.Filter})
	counters.Blocked = fetched.Blocked
	counters.RSSUsed = fetched.RSSUsed
	if err != nil {
		p.sessionLog(ctx, sessionID, "ERROR", fmt.Sprintf("fetch failed: %v", err), nil)
		return counters, fmt.Errorf("pipeline: fetch %s: %w", kind, err)
	}
	p.sessionLog(ctx, sessionID, "INFO", fmt.Sprintf("fetched %d items", len(fetched.Items)), nil)

	if params.EnableLLM && p.cfg.MaxParallelTasks > 1 {
		err = p.runParallel(ctx, sessionID, params, fetched.Items, &counters)
	} else {
		err = p.runSequential(ctx, sessionID, params, fetched.Items, &counters)
	}

	p.logger.Info("run finished",
		"kind", kind,
		"session_id", sessionID,
		"saved", counters.Saved,
		"skipped", counters.Skipped,
		"semantic_duplicates", counters.SemanticDuplicates,
		"editorial_processed", counters.EditorialProcessed,
		"errors", counters.Errors)
	p.sessionLog(ctx, sessionID, "INFO",
		fmt.Sprintf("run finished: saved=%d skipped=%d semantic_duplicates=%d editorial=%d errors=%d",
			counters.Saved, counters.Skipped, counters.SemanticDuplicates,
			counters.EditorialProcessed, counters.Errors), nil)
	return counters, err
}

func (p *Pipeline) runSequential(ctx context.Context, sessionID string, params models.JobParams, items []models.RawItem, counters *models.RunCounters) error {
	for i := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := p.ProcessItem(ctx, items[i], params)
		p.tally(ctx, sessionID, items[i], res, err, counters)
	}
	return nil
}

// runParallel keeps the admission half (validate, exact-dup gate, raw
// insert, health gate) sequential in source order and hands the enrichment
// half to a bounded pool. Two workers can race on the same source id across
// concurrent jobs; the store's unique constraint picks the winner and the
// loser counts as skipped.
func (p *Pipeline) runParallel(ctx context.Context, sessionID string, params models.JobParams, items []models.RawItem, counters *models.RunCounters) error {
	sem := make(chan struct{}, p.cfg.MaxParallelTasks)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for i := range items {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return err
		}

		item := items[i]
		res, done, err := p.admitItem(ctx, &item, params)
		if done || err != nil {
			mu.Lock()
			p.tally(ctx, sessionID, item, res, err, counters)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(item models.RawItem) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := p.enrichItem(ctx, item, params)
			mu.Lock()
			p.tally(ctx, sessionID, item, res, err, counters)
			mu.Unlock()
		}(item)
	}
	wg.Wait()
	return nil
}

// tally folds one item outcome into the run counters and the session log.
// Callers serialize access to counters.
func (p *Pipeline) tally(ctx context.Context, sessionID string, item models.RawItem, res ItemResult, err error, counters *models.RunCounters) {
	if err != nil {
		counters.Errors++
		p.logger.Error("item failed",
			"kind", item.SourceKind, "source_id", item.SourceID, "error", err)
		p.sessionLog(ctx, sessionID, "ERROR", fmt.Sprintf("%s: %v", item.SourceID, err), nil)
		return
	}

	if res.Saved {
		counters.Saved++
	}
	if res.EditorialProcessed {
		counters.EditorialProcessed++
	}

	switch res.Reason {
	case ReasonInvalid, ReasonDuplicateID:
		counters.Skipped++
		p.sessionLog(ctx, sessionID, "DEBUG",
			fmt.Sprintf("skipped %s: %s", item.SourceID, res.Reason), nil)
	case ReasonSemanticDuplicate:
		counters.SemanticDuplicates++
		p.sessionLog(ctx, sessionID, "INFO",
			fmt.Sprintf("semantic duplicate %s of %s (similarity %.2f)", item.SourceID, res.DuplicateOf, res.Similarity), nil)
	case ReasonTooShort, ReasonServicesUnavailable:
		p.sessionLog(ctx, sessionID, "DEBUG",
			fmt.Sprintf("saved %s without enrichment: %s", item.SourceID, res.Reason), nil)
	default:
		p.sessionLog(ctx, sessionID, "INFO", fmt.Sprintf("saved %s", item.SourceID), nil)
	}
}

func (p *Pipeline) openSession(ctx context.Context) string {
	if p.deps.Logs == nil {
		return ""
	}
	id, err := p.deps.Logs.CreateSession(ctx)
	if err != nil {
		p.logger.Warn("log session not created", "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) closeSession(sessionID string) {
	if p.deps.Logs == nil || sessionID == "" {
		return
	}
	// The run's context may already be cancelled; closing gets its own
	// deadline so the session never leaks open.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.Logs.CloseSession(ctx, sessionID); err != nil {
		p.logger.Warn("log session not closed", "session_id", sessionID, "error", err)
	}
}

func (p *Pipeline) sessionLog(ctx context.Context, sessionID, level, message string, fields map[string]string) {
	if p.deps.Logs == nil || sessionID == "" {
		return
	}
	entry := models.LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		SessionID: sessionID,
		Context:   fields,
	}
	if err := p.deps.Logs.AddLog(ctx, entry); err != nil {
		p.logger.Debug("log entry dropped", "session_id", sessionID, "error", err)
	}
}
