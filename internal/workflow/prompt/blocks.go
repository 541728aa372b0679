package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	wfmodel "z-script-ai-api/internal/workflow/model"
)

// 前序章节在提示词中的单章截断长度（按字符）
const maxPreviousChapterRunes = 6000

func buildExtraBlock(extra map[string]any) string {
	if len(extra) == 0 {
		return "（无）"
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("- %s: %v", k, extra[k]))
	}
	return strings.Join(lines, "\n")
}

func buildPreviousBlock(prev []wfmodel.PreviousChapter) string {
	if len(prev) == 0 {
		return "（无）"
	}
	parts := make([]string, 0, len(prev))
	for _, p := range prev {
		content := truncateByRunes(string(p.Content), maxPreviousChapterRunes)
		parts = append(parts, fmt.Sprintf("### 第 %d 章（%s）\n%s", p.Index, p.Type, content))
	}
	return strings.Join(parts, "\n\n")
}

func buildCharacterBlock(characterID string) string {
	if characterID == "" {
		return ""
	}
	return "对应角色：" + characterID
}

func rawOrPlaceholder(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "（无）"
	}
	return s
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func truncateByRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
