// Package state 定义创作会话的状态迁移规则（纯函数，无副作用）
package state

import (
	"fmt"

	"z-script-ai-api/internal/domain/entity"
)

type table map[entity.SessionState][]entity.SessionState

var stagedTable = table{
	entity.StateDraft:         {entity.StatePlanning},
	entity.StatePlanning:      {entity.StatePlanReview, entity.StateFailed},
	entity.StatePlanReview:    {entity.StateDesigning},
	entity.StateDesigning:     {entity.StateDesignReview, entity.StateFailed},
	entity.StateDesignReview:  {entity.StateExecuting},
	entity.StateExecuting:     {entity.StateChapterReview, entity.StateFailed},
	entity.StateChapterReview: {entity.StateExecuting, entity.StateCompleted},
}

var vibeTable = table{
	entity.StateDraft:      {entity.StateGenerating},
	entity.StateGenerating: {entity.StateCompleted, entity.StateFailed},
}

// TransitionError 非法迁移
type TransitionError struct {
	From entity.SessionState
	To   entity.SessionState
	Mode entity.SessionMode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s in %s mode", e.From, e.To, e.Mode)
}

func tableFor(mode entity.SessionMode) (table, bool) {
	switch mode {
	case entity.SessionModeStaged:
		return stagedTable, true
	case entity.SessionModeVibe:
		return vibeTable, true
	default:
		return nil, false
	}
}

// Transition 校验 current -> target 在 mode 下是否合法，合法时返回新状态
//
// 从 failed 出发时，只要 target 在当前表中存在指向 failed 的边，即视为合法的恢复迁移。
func Transition(current, target entity.SessionState, mode entity.SessionMode) (entity.SessionState, error) {
	t, ok := tableFor(mode)
	if !ok {
		return current, &TransitionError{From: current, To: target, Mode: mode}
	}

	if current == entity.StateFailed && CanFail(target, mode) {
		return target, nil
	}

	for _, next := range t[current] {
		if next == target {
			return target, nil
		}
	}
	return current, &TransitionError{From: current, To: target, Mode: mode}
}

// CanFail state 在 mode 下是否存在 -> failed 的边
func CanFail(s entity.SessionState, mode entity.SessionMode) bool {
	t, ok := tableFor(mode)
	if !ok {
		return false
	}
	for _, next := range t[s] {
		if next == entity.StateFailed {
			return true
		}
	}
	return false
}

// Allowed 判断迁移是否合法
func Allowed(current, target entity.SessionState, mode entity.SessionMode) bool {
	_, err := Transition(current, target, mode)
	return err == nil
}
