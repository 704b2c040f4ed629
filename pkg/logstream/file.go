package logstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/newsloom/newsloom/pkg/models"
)

const (
	logsFile     = "parsing_logs.json"
	sessionsFile = "sessions.json"
)

// fileStorage keeps entries in memory, oldest first, and mirrors every
// mutation to two JSON files so a restart picks up where it left off.
type fileStorage struct {
	dir     string
	maxLogs int
	logger  *slog.Logger

	mu       sync.Mutex
	logs     []models.LogEntry
	sessions map[string]models.Session
}

func newFileStorage(dir string, maxLogs int) (*fileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	s := &fileStorage{
		dir:      dir,
		maxLogs:  maxLogs,
		logger:   slog.With("component", "logstream"),
		sessions: make(map[string]models.Session),
	}
	s.load()
	return s, nil
}

// load restores state from disk. Missing files mean a fresh store;
// undecodable ones are abandoned rather than blocking startup.
func (s *fileStorage) load() {
	if data, err := os.ReadFile(filepath.Join(s.dir, logsFile)); err == nil {
		if err := json.Unmarshal(data, &s.logs); err != nil {
			s.logger.Warn("log file unreadable, starting empty", "error", err)
			s.logs = nil
		}
	}
	if data, err := os.ReadFile(filepath.Join(s.dir, sessionsFile)); err == nil {
		sessions := make(map[string]models.Session)
		if err := json.Unmarshal(data, &sessions); err != nil {
			s.logger.Warn("session file unreadable, starting empty", "error", err)
		} else {
			s.sessions = sessions
		}
	}
}

func (s *fileStorage) Name() string { return "file" }

func (s *fileStorage) AddLog(_ context.Context, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > s.maxLogs {
		s.logs = s.logs[len(s.logs)-s.maxLogs:]
	}
	return s.saveLogs()
}

func (s *fileStorage) GetLogs(_ context.Context, q Query) ([]models.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	window := s.logs
	if len(window) > q.Limit {
		window = window[len(window)-q.Limit:]
	}
	entries := make([]models.LogEntry, 0, len(window))
	for i := len(window) - 1; i >= 0; i-- {
		if q.matches(window[i]) {
			entries = append(entries, window[i])
		}
	}
	return entries, nil
}

func (s *fileStorage) ClearLogs(_ context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sessionID == "" {
		removed := len(s.logs)
		s.logs = nil
		return removed, s.saveLogs()
	}
	kept := make([]models.LogEntry, 0, len(s.logs))
	removed := 0
	for _, entry := range s.logs {
		if entry.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	if removed == 0 {
		return 0, nil
	}
	s.logs = kept
	return removed, s.saveLogs()
}

func (s *fileStorage) CreateSession(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := models.Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    models.SessionActive,
	}
	s.sessions[session.SessionID] = session
	if err := s.saveSessions(); err != nil {
		delete(s.sessions, session.SessionID)
		return "", err
	}
	return session.SessionID, nil
}

func (s *fileStorage) CloseSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	session.Status = models.SessionClosed
	session.ClosedAt = &now
	s.sessions[sessionID] = session
	return s.saveSessions()
}

func (s *fileStorage) ActiveSessions(_ context.Context) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Status == models.SessionActive {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// saveLogs and saveSessions require s.mu held.

func (s *fileStorage) saveLogs() error {
	data, err := json.MarshalIndent(s.logs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode log file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, logsFile), data, 0o644); err != nil {
		return fmt.Errorf("write log file: %w", err)
	}
	return nil
}

func (s *fileStorage) saveSessions() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, sessionsFile), data, 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}
