package translate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/resilience"
)

// Translation is one successfully translated text.
type Translation struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Text         string    `json:"text"`
	TranslatedAt time.Time `json:"translated_at"`
}

// Sink stores translations. Record must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, t Translation) error
}

// LogSink only logs each translation.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: logger.WithComponent("translation-sink")}
}

func (s *LogSink) Record(ctx context.Context, t Translation) error {
	s.logger.Debug("translation received", "id", t.ID, "length", len(t.Text))
	return nil
}

// RedisSink caches each translation as JSON under translation:<id>.
type RedisSink struct {
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisSink(client *redis.Client, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl, timeout: 2 * time.Second}
}

// Key returns the cache key for a review id.
func Key(id string) string {
	return "translation:" + id
}

func (s *RedisSink) Record(ctx context.Context, t Translation) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encoding translation %s: %w", t.ID, err)
	}
	return resilience.Bounded(ctx, "redis-sink", s.timeout, func(ctx context.Context) error {
		return s.client.Set(ctx, Key(t.ID), data, s.ttl)
	})
}

// execer is the part of *sql.DB the Postgres sink uses.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresSink upserts translations into the translations table.
type PostgresSink struct {
	db execer
}

const createTranslationsTable = `
CREATE TABLE IF NOT EXISTS translations (
	id            TEXT PRIMARY KEY,
	source_text   TEXT NOT NULL,
	text          TEXT NOT NULL,
	translated_at TIMESTAMPTZ NOT NULL
)`

const upsertTranslation = `
INSERT INTO translations (id, source_text, text, translated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	source_text = EXCLUDED.source_text,
	text = EXCLUDED.text,
	translated_at = EXCLUDED.translated_at`

// NewPostgresSink creates the translations table if it does not exist.
func NewPostgresSink(ctx context.Context, db execer) (*PostgresSink, error) {
	if _, err := db.ExecContext(ctx, createTranslationsTable); err != nil {
		return nil, fmt.Errorf("creating translations table: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

func (s *PostgresSink) Record(ctx context.Context, t Translation) error {
	if _, err := s.db.ExecContext(ctx, upsertTranslation, t.ID, t.Source, t.Text, t.TranslatedAt); err != nil {
		return fmt.Errorf("storing translation %s: %w", t.ID, err)
	}
	return nil
}
