package authoring

import (
	"context"
	"encoding/json"
	"testing"

	"z-script-ai-api/internal/domain/entity"
	apperrors "z-script-ai-api/pkg/errors"
)

func completedSession(id string) *entity.AuthoringSession {
	s := reviewSession(id, 2, 0, 1, 2, 4)
	s.PutChapter(entity.Chapter{Index: 3, Type: entity.ChapterTypeMaterials, Content: json.RawMessage(`[{"m":1},{"m":2}]`)})
	s.State = entity.StateCompleted
	return s
}

func TestAssembleUsesEffectiveContent(t *testing.T) {
	env := newTestEnv(t, 2, true)
	s := completedSession("s-1")
	s.AppendChapterEdit(1, entity.AuthorEdit{Before: chapterJSON(1), After: json.RawMessage(`{"edit":1}`)})
	s.AppendChapterEdit(1, entity.AuthorEdit{Before: json.RawMessage(`{"edit":1}`), After: json.RawMessage(`{"edit":2}`)})
	env.put(t, s)

	script, err := env.orch.AssembleScript(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("AssembleScript: %v", err)
	}
	if script.Title != "雾港疑案" || script.SessionID != s.ID {
		t.Fatalf("unexpected script header: %+v", script)
	}
	if len(script.PlayerHandbooks) != 2 || string(script.PlayerHandbooks[0].Content) != `{"edit":2}` {
		t.Fatalf("player handbooks = %+v", script.PlayerHandbooks)
	}
	if script.PlayerHandbooks[1].CharacterID == "" {
		t.Fatal("character id missing")
	}
	if len(script.Materials) != 2 || string(script.Materials[1]) != `{"m":2}` {
		t.Fatalf("materials = %s", script.Materials)
	}
	if string(script.DMHandbook) != string(chapterJSON(0)) || string(script.BranchStructure) != string(chapterJSON(4)) {
		t.Fatal("dm handbook or branch structure misplaced")
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	env := newTestEnv(t, 2, true)
	s := completedSession("s-1")
	env.put(t, s)

	first, err := env.orch.AssembleScript(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("AssembleScript: %v", err)
	}
	second, err := env.orch.AssembleScript(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("AssembleScript again: %v", err)
	}
	if first.ID != second.ID || env.scripts.stores != 1 {
		t.Fatalf("script stored %d times (%s, %s)", env.scripts.stores, first.ID, second.ID)
	}
	if got := env.reload(t, s.ID); got.ScriptID != first.ID {
		t.Fatalf("session script id = %q", got.ScriptID)
	}

	fetched, err := env.orch.GetScript(context.Background(), first.ID)
	if err != nil || fetched.ID != first.ID {
		t.Fatalf("GetScript: %v", err)
	}
	if _, err := env.orch.GetScript(context.Background(), "missing"); !apperrors.HasCode(err, apperrors.CodeScriptNotFound) {
		t.Fatalf("expected script not found, got %v", err)
	}
}

func TestAssembleRequiresCompleted(t *testing.T) {
	env := newTestEnv(t, 2, true)
	s := reviewSession("s-1", 2, 0)
	env.put(t, s)
	if _, err := env.orch.AssembleScript(context.Background(), s.ID); !apperrors.HasCode(err, apperrors.CodeInvalidState) {
		t.Fatalf("expected state error, got %v", err)
	}
}

func TestBuildScriptRejectsIncompleteLayout(t *testing.T) {
	s := completedSession("s-1")
	s.Chapters = s.Chapters[1:]
	if _, err := buildScript(s); !apperrors.HasCode(err, apperrors.CodeAssemblyFailed) {
		t.Fatalf("expected assembly failure, got %v", err)
	}

	empty := entity.NewAuthoringSession("s-2", "cfg-1", entity.SessionModeVibe)
	if _, err := buildScript(empty); !apperrors.HasCode(err, apperrors.CodeAssemblyFailed) {
		t.Fatalf("expected assembly failure, got %v", err)
	}
}

func TestSplitMaterials(t *testing.T) {
	if got := splitMaterials(json.RawMessage(`[1,2,3]`)); len(got) != 3 {
		t.Fatalf("array not expanded: %s", got)
	}
	if got := splitMaterials(json.RawMessage(`{"clue":"x"}`)); len(got) != 1 || string(got[0]) != `{"clue":"x"}` {
		t.Fatalf("object not kept: %s", got)
	}
}

type countingTx struct {
	calls int
}

func (t *countingTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

func TestAssembleRunsInTransaction(t *testing.T) {
	env := newTestEnv(t, 2, true)
	tx := &countingTx{}
	WithTransactor(tx)(env.orch)
	s := completedSession("s-1")
	env.put(t, s)

	script, err := env.orch.AssembleScript(context.Background(), s.ID)
	if err != nil {
		t.Fatalf("AssembleScript: %v", err)
	}
	if tx.calls != 1 {
		t.Fatalf("transaction calls = %d, want 1", tx.calls)
	}
	if got := env.reload(t, s.ID); got.ScriptID != script.ID {
		t.Fatalf("session script id = %q, want %q", got.ScriptID, script.ID)
	}
}
