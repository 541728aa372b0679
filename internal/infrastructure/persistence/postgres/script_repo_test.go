package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"z-script-ai-api/internal/config"
	"z-script-ai-api/internal/domain/entity"
)

func TestScriptRowConversion(t *testing.T) {
	in := &entity.Script{
		ID:         "s-1",
		SessionID:  "sess-1",
		ConfigID:   "cfg-1",
		Title:      "雪夜山庄",
		DMHandbook: json.RawMessage(`{"dm":true}`),
		PlayerHandbooks: []entity.PlayerHandbook{
			{Index: 1, CharacterID: "player-1", Content: json.RawMessage(`{"p":1}`)},
			{Index: 2, CharacterID: "player-2", Content: json.RawMessage(`{"p":2}`)},
		},
		Materials:       []json.RawMessage{json.RawMessage(`{"m":1}`)},
		BranchStructure: json.RawMessage(`{"b":1}`),
		CreatedAt:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	row, err := toScriptRow(in)
	if err != nil {
		t.Fatalf("toScriptRow: %v", err)
	}
	if len(row.CharacterIDs) != 2 || row.CharacterIDs[1] != "player-2" {
		t.Fatalf("character ids = %v", row.CharacterIDs)
	}

	out, err := row.toEntity()
	if err != nil {
		t.Fatalf("toEntity: %v", err)
	}
	if out.Title != in.Title || string(out.DMHandbook) != `{"dm":true}` || len(out.PlayerHandbooks) != 2 {
		t.Fatalf("round trip lost data: %+v", out)
	}
	if string(out.PlayerHandbooks[1].Content) != `{"p":2}` || string(out.BranchStructure) != `{"b":1}` {
		t.Fatalf("round trip lost content: %+v", out)
	}
}

func TestGormLogLevel(t *testing.T) {
	if gormLogLevel("silent") == gormLogLevel("info") {
		t.Fatalf("levels should differ")
	}
	if gormLogLevel("") != gormLogLevel("warn") {
		t.Fatalf("empty level should default to warn")
	}
}

func TestBuildDSNEscapesCredentials(t *testing.T) {
	dsn := buildDSN(&config.PostgresConfig{
		Host: "db", Port: 5432, User: "author", Password: "p@ss word", Database: "z_script",
	})
	want := "postgres://author:p%40ss%20word@db:5432/z_script?connect_timeout=5&sslmode=disable"
	if dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}
}
