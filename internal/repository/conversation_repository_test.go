package repository

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestConversationRepository_AppendAndClear(t *testing.T) {
	t.Parallel()

	pool := &fakePool{}
	repo := NewConversationRepository(pool, testTracer)

	if err := repo.AppendMessage(context.Background(), 42, "user", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ClearHistory(context.Background(), 42); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pool.execSQL) != 2 ||
		!strings.Contains(pool.execSQL[0], "INSERT INTO conversation_messages") ||
		!strings.Contains(pool.execSQL[1], "DELETE FROM conversation_messages") {
		t.Fatalf("unexpected statements: %v", pool.execSQL)
	}
}

func TestConversationRepository_RecentMessages(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	pool := &fakePool{rows: &fakeRows{data: [][]any{
		{"user", "what about btc", ts},
		{"assistant", "bullish", ts.Add(time.Second)},
	}}}
	repo := NewConversationRepository(pool, testTracer)

	got, err := repo.RecentMessages(context.Background(), 42, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Role != "user" || got[1].Content != "bullish" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if got[0].CreatedAt.Location() != time.UTC {
		t.Fatal("timestamps should be normalized to UTC")
	}
	if pool.queryArg[0] != int64(42) || pool.queryArg[1] != 20 {
		t.Fatalf("unexpected args: %v", pool.queryArg)
	}
}
