// Package logstream persists run-progress logs outside the process logger:
// an append-and-trim store capped at the newest max_logs entries, plus a
// session registry scoping entries to one orchestrator run. Two backends
// share one interface; redis is used when reachable at startup, a local
// JSON file store otherwise. The choice is made once per process lifetime,
// with no runtime failover.
package logstream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/newsloom/newsloom/pkg/config"
	"github.com/newsloom/newsloom/pkg/models"
)

const (
	defaultQueryLimit = 100
	defaultSession    = "default"

	redisDialTimeout = 3 * time.Second
)

// Query filters a log read. Limit bounds the scan window over the newest
// entries; the session and level filters apply within that window.
type Query struct {
	Limit     int
	SessionID string
	Level     string
}

func (q Query) matches(entry models.LogEntry) bool {
	if q.SessionID != "" && entry.SessionID != q.SessionID {
		return false
	}
	if q.Level != "" && entry.Level != q.Level {
		return false
	}
	return true
}

// Storage is the backend interface. GetLogs returns entries newest-first.
// CloseSession on an unknown id is a no-op.
type Storage interface {
	AddLog(ctx context.Context, entry models.LogEntry) error
	GetLogs(ctx context.Context, q Query) ([]models.LogEntry, error)
	ClearLogs(ctx context.Context, sessionID string) (int, error)
	CreateSession(ctx context.Context) (string, error)
	CloseSession(ctx context.Context, sessionID string) error
	ActiveSessions(ctx context.Context) ([]models.Session, error)
	Name() string
}

// Manager fronts the chosen backend and normalizes entries on the way in.
// It satisfies the pipeline's run-log contract.
type Manager struct {
	storage Storage
	logger  *slog.Logger
}

// New picks the backend and returns the ready manager. Redis wins when it
// answers a ping within the dial timeout; otherwise the file store under
// cfg LogDir is used. Only a file-store setup failure is fatal.
func New(ctx context.Context, rcfg config.RedisConfig, pcfg config.PipelineConfig) (*Manager, error) {
	logger := slog.With("component", "logstream")

	var storage Storage
	redisStore, err := dialRedis(ctx, rcfg, pcfg.MaxLogs)
	if err == nil {
		storage = redisStore
	} else {
		logger.Warn("redis unreachable, falling back to file log store",
			"addr", rcfg.Addr, "error", err)
		fileStore, ferr := newFileStorage(pcfg.LogDir, pcfg.MaxLogs)
		if ferr != nil {
			return nil, ferr
		}
		storage = fileStore
	}

	logger.Info("log store ready", "backend", storage.Name())
	return &Manager{storage: storage, logger: logger}, nil
}

func dialRedis(ctx context.Context, cfg config.RedisConfig, maxLogs int) (*redisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisStorage{
		client:  client,
		maxLogs: maxLogs,
		logger:  slog.With("component", "logstream"),
	}, nil
}

// Backend names the storage backend in use.
func (m *Manager) Backend() string { return m.storage.Name() }

// AddLog normalizes and appends one entry: a zero timestamp becomes now, a
// missing level becomes INFO, and entries without a session land in the
// shared default session.
func (m *Manager) AddLog(ctx context.Context, entry models.LogEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = "INFO"
	} else {
		entry.Level = strings.ToUpper(entry.Level)
	}
	if entry.SessionID == "" {
		entry.SessionID = defaultSession
	}
	return m.storage.AddLog(ctx, entry)
}

// GetLogs returns entries newest-first. A non-positive limit reads the
// default window.
func (m *Manager) GetLogs(ctx context.Context, q Query) ([]models.LogEntry, error) {
	if q.Limit <= 0 {
		q.Limit = defaultQueryLimit
	}
	q.Level = strings.ToUpper(q.Level)
	return m.storage.GetLogs(ctx, q)
}

// ClearLogs drops entries, all of them or one session's worth, and reports
// how many were removed.
func (m *Manager) ClearLogs(ctx context.Context, sessionID string) (int, error) {
	return m.storage.ClearLogs(ctx, sessionID)
}

// CreateSession registers a new active session and writes its opening
// marker entry.
func (m *Manager) CreateSession(ctx context.Context) (string, error) {
	id, err := m.storage.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	if err := m.AddLog(ctx, models.LogEntry{Level: "INFO", Message: "session created", SessionID: id}); err != nil {
		m.logger.Debug("session marker not recorded", "session_id", id, "error", err)
	}
	return id, nil
}

// CloseSession writes the closing marker and marks the session closed.
func (m *Manager) CloseSession(ctx context.Context, sessionID string) error {
	if err := m.AddLog(ctx, models.LogEntry{Level: "INFO", Message: "session closed", SessionID: sessionID}); err != nil {
		m.logger.Debug("session marker not recorded", "session_id", sessionID, "error", err)
	}
	return m.storage.CloseSession(ctx, sessionID)
}

// ActiveSessions lists sessions still open, oldest first.
func (m *Manager) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	return m.storage.ActiveSessions(ctx)
}
