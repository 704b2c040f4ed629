// Package jobs owns the scrape-job lifecycle: submission and validation, an
// in-memory job table polled by the REST layer, and a bounded worker pool
// that drives the pipeline. Jobs are process-local; loss on restart is
// acceptable and callers poll by job_id.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

// Package sentinel errors. The REST layer maps ErrInvalidParams to 400,
// ErrNotFound to 404, and ErrStopped to 503.
var (
	ErrNotFound      = errors.New("job not found")
	ErrInvalidParams = errors.New("invalid job parameters")
	ErrStopped       = errors.New("job runner stopped")
)

// Runner executes one scrape job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, kind models.SourceKind, params models.JobParams) (models.RunCounters, error)
}

// Stats is a point-in-time census of the job table, reported by the health
// endpoint.
type Stats struct {
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Workers   int `json:"workers"`
}

// Manager schedules submitted jobs onto a fixed pool of runner workers.
// All exported methods are safe for concurrent use.
type Manager struct {
	runner Runner
	cfg    config.PipelineConfig
	logger *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*models.Job
	order   []string
	cancels map[string]context.CancelFunc
	stopped bool
	started bool

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Manager over the given runner. Call Start to begin executing
// submitted jobs.
func New(runner Runner, cfg config.PipelineConfig) *Manager {
	return &Manager{
		runner:  runner,
		cfg:     cfg,
		logger:  slog.With("component", "jobs"),
		jobs:    make(map[string]*models.Job),
		cancels: make(map[string]context.CancelFunc),
		wake:    make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start spawns the runner workers. It is safe to call multiple times;
// subsequent calls are no-ops. Jobs submitted before Start wait in pending.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		m.logger.Warn("job runner already started, ignoring duplicate Start call")
		return
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info("starting job runner", "workers", m.cfg.RunnerWorkers)
	for i := 0; i < m.cfg.RunnerWorkers; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx, i)
	}
	m.wakeWorkers()
}

// Stop signals all workers to stop and waits for them to finish. Running
// jobs complete on their own (the caller's root context aborts them at item
// boundaries during shutdown); pending jobs stay pending.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	running := len(m.cancels)
	m.mu.Unlock()

	if running > 0 {
		m.logger.Info("waiting for running jobs to finish", "count", running)
	}
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
	m.logger.Info("job runner stopped")
}

// Submit validates the request, stores the job as pending, and signals the
// worker pool. The returned Job is a snapshot; poll Get for progress.
func (m *Manager) Submit(kind models.SourceKind, params models.JobParams) (*models.Job, error) {
	if err := m.validate(kind, params); err != nil {
		return nil, err
	}

	job := &models.Job{
		JobID:      uuid.NewString(),
		SourceKind: kind,
		Params:     params,
		State:      models.JobPending,
		CreatedAt:  time.Now().UTC(),
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrStopped
	}
	m.jobs[job.JobID] = job
	m.order = append(m.order, job.JobID)
	// Snapshot under the lock: once a worker wakes it may mutate the job.
	snapshot := cloneJob(job)
	m.mu.Unlock()

	m.logger.Info("job submitted",
		"job_id", job.JobID,
		"kind", kind,
		"max_items", params.MaxItems,
		"enable_llm", params.EnableLLM,
		"enable_deduplication", params.EnableDeduplication)
	m.wakeWorkers()
	return snapshot, nil
}

// Get returns a snapshot of the job, or ErrNotFound.
func (m *Manager) Get(jobID string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneJob(job), nil
}

// List returns up to limit job snapshots, newest submission first. A
// non-positive limit returns all jobs.
func (m *Manager) List(limit int) []*models.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.order) {
		limit = len(m.order)
	}
	out := make([]*models.Job, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneJob(m.jobs[m.order[i]]))
	}
	return out
}

// Cleanup drops completed and failed jobs from the table and reports how
// many were removed. Pending and running jobs are kept.
func (m *Manager) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	removed := 0
	for _, id := range m.order {
		if m.jobs[id].State.Terminal() {
			delete(m.jobs, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	if removed > 0 {
		m.logger.Info("job table cleaned", "removed", removed, "kept", len(kept))
	}
	return removed
}

// Cancel flips a job's desired state. A pending job fails immediately and
// never runs; a running job stops at its next item boundary. Returns false
// when the job is unknown or already terminal.
func (m *Manager) Cancel(jobID string) bool {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok || job.State.Terminal() {
		m.mu.Unlock()
		return false
	}
	if job.State == models.JobPending {
		now := time.Now().UTC()
		job.State = models.JobFailed
		job.CompletedAt = &now
		job.Error = "cancelled before start"
		m.mu.Unlock()
		m.logger.Info("pending job cancelled", "job_id", jobID)
		return true
	}
	cancel := m.cancels[jobID]
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.logger.Info("running job cancelled", "job_id", jobID)
	return true
}

// Snapshot returns the current job-state census.
func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Workers: m.cfg.RunnerWorkers}
	for _, job := range m.jobs {
		switch job.State {
		case models.JobPending:
			s.Pending++
		case models.JobRunning:
			s.Running++
		case models.JobCompleted:
			s.Completed++
		case models.JobFailed:
			s.Failed++
		}
	}
	return s
}

func (m *Manager) validate(kind models.SourceKind, params models.JobParams) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidParams, kind)
	}
	if params.MaxItems < 1 || params.MaxItems > m.cfg.MaxItemsCap {
		return fmt.Errorf("%w: max_items must be in [1, %d], got %d",
			ErrInvalidParams, m.cfg.MaxItemsCap, params.MaxItems)
	}
	for _, f := range params.Filter {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("%w: blank filter entry", ErrInvalidParams)
		}
	}
	return nil
}

// runWorker is one runner goroutine: it waits for a wake-up, then drains
// pending jobs until none are left.
func (m *Manager) runWorker(ctx context.Context, id int) {
	defer m.wg.Done()

	log := m.logger.With("worker", id)
	log.Debug("runner worker started")
	for {
		select {
		case <-m.stopCh:
			log.Debug("runner worker stopped")
			return
		case <-ctx.Done():
			log.Debug("context cancelled, runner worker stopped")
			return
		case <-m.wake:
			for {
				jobID, runCtx, ok := m.claimNext(ctx)
				if !ok {
					break
				}
				// More jobs may be pending; rouse a sibling before the
				// run occupies this worker.
				m.wakeWorkers()
				m.execute(runCtx, jobID)
			}
		}
	}
}

// claimNext marks the oldest pending job as running and returns its id
// together with the job's own cancellable context. The cancel function is
// registered under the lock, so Cancel observes either a pending job or a
// cancellable running one, never a gap.
func (m *Manager) claimNext(ctx context.Context) (string, context.Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return "", nil, false
	}
	for _, id := range m.order {
		job := m.jobs[id]
		if job.State != models.JobPending {
			continue
		}
		now := time.Now().UTC()
		job.State = models.JobRunning
		job.StartedAt = &now
		runCtx, cancel := context.WithCancel(ctx)
		m.cancels[id] = cancel
		return id, runCtx, true
	}
	return "", nil, false
}

// execute drives one claimed job to a terminal state.
func (m *Manager) execute(ctx context.Context, jobID string) {
	defer m.releaseCancel(jobID)

	m.mu.RLock()
	job := m.jobs[jobID]
	kind, params := job.SourceKind, job.Params
	m.mu.RUnlock()

	log := m.logger.With("job_id", jobID, "kind", kind)
	log.Info("job started")

	counters, err := m.runner.Run(ctx, kind, params)

	m.mu.Lock()
	defer m.mu.Unlock()
	job = m.jobs[jobID]
	now := time.Now().UTC()
	job.CompletedAt = &now
	// Counters are meaningful even on failure: they cover the items
	// processed before the run stopped.
	job.Result = counters.AsMap()
	if err != nil {
		job.State = models.JobFailed
		job.Error = err.Error()
		log.Error("job failed", "error", err)
		return
	}
	job.State = models.JobCompleted
	log.Info("job finished",
		"saved", counters.Saved,
		"skipped", counters.Skipped,
		"semantic_duplicates", counters.SemanticDuplicates,
		"editorial_processed", counters.EditorialProcessed,
		"errors", counters.Errors)
}

func (m *Manager) releaseCancel(jobID string) {
	m.mu.Lock()
	cancel := m.cancels[jobID]
	delete(m.cancels, jobID)
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// wakeWorkers nudges one idle worker. The buffer makes it a no-op when a
// wake-up is already queued.
func (m *Manager) wakeWorkers() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func cloneJob(j *models.Job) *models.Job {
	c := *j
	if j.Result != nil {
		c.Result = make(map[string]any, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	if j.Params.Filter != nil {
		c.Params.Filter = append([]string(nil), j.Params.Filter...)
	}
	return &c
}
