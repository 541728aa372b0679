package prompt

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"testing/fstest"

	wfmodel "z-script-ai-api/internal/workflow/model"
)

func testSettings() wfmodel.ScriptSettings {
	return wfmodel.ScriptSettings{
		Title:       "雪夜山庄",
		PlayerCount: 4,
		Theme:       "复仇",
		Era:         "民国",
		GameType:    "本格",
		Extra:       map[string]any{"difficulty": "hard"},
	}
}

func TestRegistryCachesTemplates(t *testing.T) {
	r := NewRegistry()
	a, err := r.ChatTemplate(PromptPlanV1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.ChatTemplate(PromptPlanV1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("template should be cached")
	}
	if _, err := r.ChatTemplate("missing"); err == nil {
		t.Fatalf("unknown prompt id should fail")
	}
}

func TestPlanPrompt(t *testing.T) {
	b := NewBuilder(nil)
	p, err := b.PlanPrompt(context.Background(), testSettings())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.SystemPrompt == "" || !strings.Contains(p.Prompt, "雪夜山庄") {
		t.Fatalf("unexpected prompt: %+v", p)
	}
	if !strings.Contains(p.Prompt, "difficulty: hard") {
		t.Fatalf("extra settings missing from prompt: %s", p.Prompt)
	}
	if !strings.Contains(p.Prompt, `{"worldOverview"`) {
		t.Fatalf("escaped braces should render literally: %s", p.Prompt)
	}
	if p.MaxTokens == nil || p.Temperature == nil {
		t.Fatalf("default generation params missing")
	}
}

func TestChapterPromptIncludesContext(t *testing.T) {
	b := NewBuilder(nil)
	brief := wfmodel.ChapterBrief{
		Index:       2,
		Type:        "player_handbook",
		CharacterID: "player-2",
		Plan:        json.RawMessage(`{"coreTrick":"mirror"}`),
		Outline:     json.RawMessage(`{"trickMechanism":"reflection"}`),
		Previous: []wfmodel.PreviousChapter{
			{Index: 0, Type: "dm_handbook", Content: json.RawMessage(`{"dm":"intro"}`)},
		},
	}
	p, err := b.ChapterPrompt(context.Background(), testSettings(), brief)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"player-2", "mirror", "reflection", `{"dm":"intro"}`, "player_handbook"} {
		if !strings.Contains(p.Prompt, want) {
			t.Fatalf("chapter prompt should contain %q:\n%s", want, p.Prompt)
		}
	}
}

func TestOutlineAndVibePrompts(t *testing.T) {
	b := NewBuilder(nil)
	o, err := b.OutlinePrompt(context.Background(), testSettings(), []byte(`{"era":"1920s"}`))
	if err != nil || !strings.Contains(o.Prompt, "1920s") {
		t.Fatalf("outline prompt: %v %+v", err, o)
	}
	v, err := b.VibePrompt(context.Background(), testSettings())
	if err != nil || !strings.Contains(v.SystemPrompt, "playerHandbooks") {
		t.Fatalf("vibe prompt: %v %+v", err, v)
	}
}

func TestTruncateByRunes(t *testing.T) {
	if got := truncateByRunes("剧本杀作者", 2); got != "剧本" {
		t.Fatalf("got %q", got)
	}
	if got := truncateByRunes("abc", 10); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestRegistryRejectsIncompleteTemplates(t *testing.T) {
	r := newRegistryFS(fstest.MapFS{
		"templates/only_system.system.txt": {Data: []byte("sys")},
		"templates/blank.system.txt":       {Data: []byte("sys")},
		"templates/blank.user.txt":         {Data: []byte("  \n")},
		"templates/ok.system.txt":          {Data: []byte("你是 {title} 的作者")},
		"templates/ok.user.txt":            {Data: []byte("写一个开头")},
	})

	for _, id := range []PromptID{"only_system", "blank", "../ok", ""} {
		if _, err := r.ChatTemplate(id); err == nil {
			t.Errorf("%q: expected error", id)
		}
	}

	tpl, err := r.ChatTemplate("ok")
	if err != nil {
		t.Fatalf("ok: %v", err)
	}
	msgs, err := tpl.Format(context.Background(), map[string]any{"title": "雪夜山庄"})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(msgs) != 2 || !strings.Contains(msgs[0].Content, "雪夜山庄") {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}
