// Package parser 校验并提取模型输出中的阶段内容
package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	wfmodel "z-script-ai-api/internal/workflow/model"
)

const (
	PhasePlan    = "plan"
	PhaseOutline = "outline"
	PhaseChapter = "chapter"
	PhaseVibe    = "generating"
)

// ParseValidationError 模型输出格式错误或缺少字段
type ParseValidationError struct {
	Phase string
	// Path 出错字段路径，如 characters[0].name；整体无法解析时为空
	Path string
	Msg  string
	Err  error
}

func (e *ParseValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", e.Phase, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Phase, e.Path, e.Msg)
}

func (e *ParseValidationError) Unwrap() error { return e.Err }

// StripCodeFence 去掉 ```json ... ``` 包裹
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// 语言标记
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decode(phase, raw string) (json.RawMessage, any, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, nil, &ParseValidationError{Phase: phase, Msg: "empty response"}
	}
	var v any
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, nil, &ParseValidationError{Phase: phase, Msg: "invalid JSON: " + err.Error(), Err: err}
	}
	if dec.More() {
		return nil, nil, &ParseValidationError{Phase: phase, Msg: "unexpected trailing content after JSON value"}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(body)); err != nil {
		return nil, nil, &ParseValidationError{Phase: phase, Msg: "invalid JSON: " + err.Error(), Err: err}
	}
	return json.RawMessage(buf.Bytes()), v, nil
}

type checker struct {
	phase string
}

func (c checker) object(v any, path string) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, c.fail(path, "must be a JSON object")
	}
	return obj, nil
}

func (c checker) str(obj map[string]any, key, prefix string) error {
	path := join(prefix, key)
	v, ok := obj[key]
	if !ok || v == nil {
		return c.fail(path, "is required")
	}
	s, ok := v.(string)
	if !ok {
		return c.fail(path, "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return c.fail(path, "must not be empty")
	}
	return nil
}

func (c checker) array(obj map[string]any, key, prefix string) ([]any, error) {
	path := join(prefix, key)
	v, ok := obj[key]
	if !ok || v == nil {
		return nil, c.fail(path, "is required")
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, c.fail(path, "must be an array")
	}
	if len(arr) == 0 {
		return nil, c.fail(path, "must contain at least one item")
	}
	return arr, nil
}

func (c checker) present(obj map[string]any, key, prefix string) error {
	v, ok := obj[key]
	if !ok || v == nil {
		return c.fail(join(prefix, key), "is required")
	}
	return nil
}

func (c checker) fail(path, msg string) error {
	return &ParseValidationError{Phase: c.phase, Path: path, Msg: msg}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// ParsePlan 解析策划阶段输出
func ParsePlan(raw string) (*wfmodel.PlanContent, json.RawMessage, error) {
	c := checker{phase: PhasePlan}
	body, v, err := decode(c.phase, raw)
	if err != nil {
		return nil, nil, err
	}
	obj, err := c.object(v, "")
	if err != nil {
		return nil, nil, err
	}
	if err := c.str(obj, "worldOverview", ""); err != nil {
		return nil, nil, err
	}
	chars, err := c.array(obj, "characters", "")
	if err != nil {
		return nil, nil, err
	}
	for i, item := range chars {
		prefix := fmt.Sprintf("characters[%d]", i)
		ch, err := c.object(item, prefix)
		if err != nil {
			return nil, nil, err
		}
		for _, key := range []string{"name", "role", "relationshipSketch"} {
			if err := c.str(ch, key, prefix); err != nil {
				return nil, nil, err
			}
		}
	}
	for _, key := range []string{"coreTrick", "tone", "era"} {
		if err := c.str(obj, key, ""); err != nil {
			return nil, nil, err
		}
	}

	var plan wfmodel.PlanContent
	if err := json.Unmarshal(body, &plan); err != nil {
		return nil, nil, &ParseValidationError{Phase: c.phase, Msg: err.Error(), Err: err}
	}
	return &plan, body, nil
}

// ParseOutline 解析大纲阶段输出
func ParseOutline(raw string) (*wfmodel.OutlineContent, json.RawMessage, error) {
	c := checker{phase: PhaseOutline}
	body, v, err := decode(c.phase, raw)
	if err != nil {
		return nil, nil, err
	}
	obj, err := c.object(v, "")
	if err != nil {
		return nil, nil, err
	}
	for _, key := range []string{"timeline", "characterArcs", "clues", "branches", "endings"} {
		if _, err := c.array(obj, key, ""); err != nil {
			return nil, nil, err
		}
	}
	if err := c.str(obj, "trickMechanism", ""); err != nil {
		return nil, nil, err
	}

	var outline wfmodel.OutlineContent
	if err := json.Unmarshal(body, &outline); err != nil {
		return nil, nil, &ParseValidationError{Phase: c.phase, Msg: err.Error(), Err: err}
	}
	return &outline, body, nil
}

// ParseChapter 章节内容接受任意合法 JSON 值，附加类型与生成时间
func ParseChapter(raw string, chapterType string) (*wfmodel.ChapterContent, error) {
	body, _, err := decode(PhaseChapter, raw)
	if err != nil {
		return nil, err
	}
	return &wfmodel.ChapterContent{
		Type:        chapterType,
		Content:     body,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// ParseVibeScript 解析一次性生成的整本剧本
func ParseVibeScript(raw string) (*wfmodel.VibeScript, error) {
	c := checker{phase: PhaseVibe}
	body, v, err := decode(c.phase, raw)
	if err != nil {
		return nil, err
	}
	obj, err := c.object(v, "")
	if err != nil {
		return nil, err
	}
	if err := c.present(obj, "dmHandbook", ""); err != nil {
		return nil, err
	}
	if _, err := c.array(obj, "playerHandbooks", ""); err != nil {
		return nil, err
	}
	if err := c.present(obj, "branchStructure", ""); err != nil {
		return nil, err
	}

	var script wfmodel.VibeScript
	if err := json.Unmarshal(body, &script); err != nil {
		return nil, &ParseValidationError{Phase: c.phase, Msg: err.Error(), Err: err}
	}
	return &script, nil
}
