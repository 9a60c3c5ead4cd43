package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lexiqai/voice-coach/internal/transcript"
)

const ddlHistory = `
CREATE TABLE IF NOT EXISTS conversation_history (
    id          BIGSERIAL    PRIMARY KEY,
    language    TEXT         NOT NULL,
    scenario    TEXT         NOT NULL,
    position    INTEGER      NOT NULL,
    role        TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    correction  TEXT         NOT NULL DEFAULT '',
    spoken_at   TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_history_key
    ON conversation_history (language, scenario, position);

CREATE TABLE IF NOT EXISTS preferences (
    id          SMALLINT     PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    language    TEXT         NOT NULL DEFAULT '',
    voice_id    TEXT         NOT NULL DEFAULT '',
    difficulty  TEXT         NOT NULL DEFAULT ''
);
`

// PostgresStore keeps history and preferences in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ PreferenceStore = (*PostgresStore)(nil)
	_ HistoryStore    = (*PostgresStore)(nil)
)

// NewPostgresStore connects to dsn and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlHistory); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Check pings the database, for readiness probes.
func (s *PostgresStore) Check(ctx context.Context) (bool, error) {
	if err := s.pool.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// LoadHistory implements HistoryStore.
func (s *PostgresStore) LoadHistory(ctx context.Context, key HistoryKey) ([]transcript.Entry, error) {
	const q = `
		SELECT role, text, correction, spoken_at
		FROM conversation_history
		WHERE language = $1 AND scenario = $2
		ORDER BY position`

	rows, err := s.pool.Query(ctx, q, key.Language, key.Scenario)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load history: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var (
			e    transcript.Entry
			role string
			at   time.Time
		)
		if err := row.Scan(&role, &e.Text, &e.Correction, &at); err != nil {
			return e, err
		}
		e.Role = transcript.Role(role)
		e.Timestamp = at
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan history: %w", err)
	}
	return entries, nil
}

// SaveHistory implements HistoryStore by replacing the key's rows in one
// transaction.
func (s *PostgresStore) SaveHistory(ctx context.Context, key HistoryKey, entries []transcript.Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM conversation_history WHERE language = $1 AND scenario = $2`,
		key.Language, key.Scenario,
	); err != nil {
		return fmt.Errorf("postgres store: clear history: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"conversation_history"},
		[]string{"language", "scenario", "position", "role", "text", "correction", "spoken_at"},
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			e := entries[i]
			return []any{key.Language, key.Scenario, i, string(e.Role), e.Text, e.Correction, e.Timestamp}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("postgres store: insert history: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: commit: %w", err)
	}
	return nil
}

// LoadPreferences implements PreferenceStore.
func (s *PostgresStore) LoadPreferences(ctx context.Context) (Preferences, error) {
	var p Preferences
	err := s.pool.QueryRow(ctx,
		`SELECT language, voice_id, difficulty FROM preferences WHERE id = 1`,
	).Scan(&p.Language, &p.VoiceID, &p.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return Preferences{}, nil
	}
	if err != nil {
		return p, fmt.Errorf("postgres store: load preferences: %w", err)
	}
	return p, nil
}

// SavePreferences implements PreferenceStore.
func (s *PostgresStore) SavePreferences(ctx context.Context, p Preferences) error {
	const q = `
		INSERT INTO preferences (id, language, voice_id, difficulty)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET language = EXCLUDED.language, voice_id = EXCLUDED.voice_id, difficulty = EXCLUDED.difficulty`

	if _, err := s.pool.Exec(ctx, q, p.Language, p.VoiceID, p.Difficulty); err != nil {
		return fmt.Errorf("postgres store: save preferences: %w", err)
	}
	return nil
}
