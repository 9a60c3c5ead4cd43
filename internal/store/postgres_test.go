package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/lexiqai/voice-coach/internal/transcript"
)

// testDSN skips the test unless VOICE_COACH_TEST_POSTGRES_DSN is set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOICE_COACH_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOICE_COACH_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewPostgresStore(ctx, testDSN(t))
	if err != nil {
		t.Fatalf("NewPostgresStore failed: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE conversation_history; DELETE FROM preferences`); err != nil {
		t.Fatalf("reset tables: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestPostgresStore_History(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()
	key := HistoryKey{Language: "es", Scenario: "market"}
	at := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)

	first := []transcript.Entry{
		{Role: transcript.RoleUser, Text: "Quiero manzanas", Timestamp: at},
		{Role: transcript.RoleAgent, Text: "¿Cuántas?", Timestamp: at},
	}
	if err := s.SaveHistory(ctx, key, first); err != nil {
		t.Fatalf("SaveHistory failed: %v", err)
	}
	second := append(first, transcript.Entry{Role: transcript.RoleUser, Text: "Tres", Timestamp: at.Add(time.Second), Correction: "Tres, por favor"})
	if err := s.SaveHistory(ctx, key, second); err != nil {
		t.Fatalf("SaveHistory replace failed: %v", err)
	}

	got, err := s.LoadHistory(ctx, key)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries after replace, got %d", len(got))
	}
	if got[2].Correction != "Tres, por favor" || !got[0].Timestamp.Equal(at) {
		t.Errorf("Unexpected entries %+v", got)
	}
}

func TestPostgresStore_Preferences(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	p, err := s.LoadPreferences(ctx)
	if err != nil || p != (Preferences{}) {
		t.Fatalf("Expected empty preferences, got %+v, %v", p, err)
	}
	want := Preferences{Language: "it", VoiceID: "Charon", Difficulty: "advanced"}
	if err := s.SavePreferences(ctx, want); err != nil {
		t.Fatalf("SavePreferences failed: %v", err)
	}
	if err := s.SavePreferences(ctx, want); err != nil {
		t.Fatalf("SavePreferences upsert failed: %v", err)
	}
	if got, _ := s.LoadPreferences(ctx); got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}
}
