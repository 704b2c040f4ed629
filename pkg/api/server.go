// Package api is the REST surface: job submission and polling, record
// reads, statistics, raw-vs-editorial comparison, live run logs, and
// health. Handlers stay thin; validation beyond query parsing lives in
// the services behind the Deps interfaces.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/jobs"
	"github.com/newsloom/newsloom/pkg/logstream"
	"github.com/newsloom/newsloom/pkg/models"
	"github.com/newsloom/newsloom/pkg/store"
)

// JobService is the scrape-job surface the REST layer drives.
type JobService interface {
	Submit(kind models.SourceKind, params models.JobParams) (*models.Job, error)
	Get(jobID string) (*models.Job, error)
	List(limit int) []*models.Job
	Cleanup() int
	Snapshot() jobs.Stats
}

// RawLister pages raw items of one kind, newest fetch first.
type RawLister interface {
	ListBySource(ctx context.Context, kind models.SourceKind, limit, offset int) ([]models.RawItem, error)
}

// ProcessedGetter looks up the editorial product of a raw item.
type ProcessedGetter interface {
	GetBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (*models.ProcessedItem, error)
}

// ShortFormGetter looks up the short-form rendering of a raw item.
type ShortFormGetter interface {
	GetBySourceID(ctx context.Context, kind models.SourceKind, sourceID string) (*models.ShortFormItem, error)
}

// StatsCollector aggregates storage-wide counts.
type StatsCollector interface {
	CollectStats(ctx context.Context) (*store.Stats, error)
}

// LogStore is the live run-log surface.
type LogStore interface {
	GetLogs(ctx context.Context, q logstream.Query) ([]models.LogEntry, error)
	ClearLogs(ctx context.Context, sessionID string) (int, error)
	ActiveSessions(ctx context.Context) ([]models.Session, error)
	Backend() string
}

// Pinger probes record-store connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborator surfaces of the REST layer. Jobs, Raw,
// Processed, ShortForm, and Stats are required; a nil Logs disables the
// log routes' backing store and a nil DB skips the database probe.
type Deps struct {
	Jobs      JobService
	Raw       RawLister
	Processed ProcessedGetter
	ShortForm ShortFormGetter
	Stats     StatsCollector
	Logs      LogStore
	DB        Pinger
}

// Server owns the gin router and the HTTP listener.
type Server struct {
	deps   Deps
	cfg    *config.Config
	router *gin.Engine
	logger *slog.Logger
}

// NewServer wires the routes and middleware. The caller is responsible for
// gin's global mode (release in main, test mode in tests).
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := slog.With("component", "api")

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), securityHeaders())

	s := &Server{
		deps:   deps,
		cfg:    cfg,
		router: router,
		logger: logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.POST("/scrape/:source_kind", s.submitScrapeHandler)
	s.router.GET("/scrape/status/:job_id", s.jobStatusHandler)
	s.router.GET("/scrape/jobs", s.listJobsHandler)
	s.router.DELETE("/scrape/jobs", s.cleanupJobsHandler)

	s.router.GET("/statistics", s.statisticsHandler)
	s.router.GET("/comparison", s.comparisonHandler)
	s.router.GET("/health", s.healthHandler)

	s.router.GET("/logs", s.getLogsHandler)
	s.router.DELETE("/logs", s.clearLogsHandler)
	s.router.GET("/logs/sessions", s.logSessionsHandler)

	// The wildcard coexists with the static first segments above; gin
	// matches static routes first.
	s.router.GET("/:source/records", s.listRecordsHandler)
}

// Router exposes the handler tree, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until ctx is cancelled, then drains in-flight requests within
// the configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("http server listening", "addr", s.cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

// intQuery parses an optional integer query parameter.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", name, raw)
	}
	return v, nil
}

// boolQuery parses an optional boolean query parameter.
func boolQuery(c *gin.Context, name string, fallback bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", name, raw)
	}
	return v, nil
}
