package logstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/newsloom/newsloom/pkg/models"
)

const (
	logKey     = "parsing_logs"
	sessionKey = "parsing_sessions"
)

// redisStorage keeps entries in a capped list (newest at the head) and
// sessions in a hash keyed by session id.
type redisStorage struct {
	client  *redis.Client
	maxLogs int
	logger  *slog.Logger
}

func (s *redisStorage) Name() string { return "redis" }

func (s *redisStorage) AddLog(ctx context.Context, entry models.LogEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	if err := s.client.LPush(ctx, logKey, payload).Err(); err != nil {
		return fmt.Errorf("push log entry: %w", err)
	}
	if err := s.client.LTrim(ctx, logKey, 0, int64(s.maxLogs-1)).Err(); err != nil {
		return fmt.Errorf("trim log list: %w", err)
	}
	return nil
}

func (s *redisStorage) GetLogs(ctx context.Context, q Query) ([]models.LogEntry, error) {
	raw, err := s.client.LRange(ctx, logKey, 0, int64(q.Limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read log entries: %w", err)
	}
	entries := make([]models.LogEntry, 0, len(raw))
	for _, item := range raw {
		var entry models.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.Warn("skipping undecodable log entry", "error", err)
			continue
		}
		if q.matches(entry) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *redisStorage) ClearLogs(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		total, err := s.client.LLen(ctx, logKey).Result()
		if err != nil {
			return 0, fmt.Errorf("count log entries: %w", err)
		}
		if err := s.client.Del(ctx, logKey).Err(); err != nil {
			return 0, fmt.Errorf("clear log list: %w", err)
		}
		return int(total), nil
	}

	raw, err := s.client.LRange(ctx, logKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("read log entries: %w", err)
	}
	kept := make([]interface{}, 0, len(raw))
	removed := 0
	for _, item := range raw {
		var entry models.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err == nil && entry.SessionID == sessionID {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.client.Del(ctx, logKey).Err(); err != nil {
		return 0, fmt.Errorf("rewrite log list: %w", err)
	}
	if len(kept) > 0 {
		// LRange returned newest-first; RPUSH in that order keeps the
		// head newest.
		if err := s.client.RPush(ctx, logKey, kept...).Err(); err != nil {
			return 0, fmt.Errorf("rewrite log list: %w", err)
		}
	}
	return removed, nil
}

func (s *redisStorage) CreateSession(ctx context.Context) (string, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    models.SessionActive,
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.HSet(ctx, sessionKey, session.SessionID, payload).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return session.SessionID, nil
}

func (s *redisStorage) CloseSession(ctx context.Context, sessionID string) error {
	raw, err := s.client.HGet(ctx, sessionKey, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return fmt.Errorf("decode session: %w", err)
	}
	now := time.Now().UTC()
	session.Status = models.SessionClosed
	session.ClosedAt = &now
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.HSet(ctx, sessionKey, sessionID, payload).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *redisStorage) ActiveSessions(ctx context.Context) ([]models.Session, error) {
	all, err := s.client.HGetAll(ctx, sessionKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	sessions := make([]models.Session, 0, len(all))
	for _, raw := range all {
		var session models.Session
		if err := json.Unmarshal([]byte(raw), &session); err != nil {
			s.logger.Warn("skipping undecodable session", "error", err)
			continue
		}
		if session.Status == models.SessionActive {
			sessions = append(sessions, session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}
