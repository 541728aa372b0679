package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ChapterType 章节类型
type ChapterType string

const (
	ChapterTypeDMHandbook      ChapterType = "dm_handbook"
	ChapterTypePlayerHandbook  ChapterType = "player_handbook"
	ChapterTypeMaterials       ChapterType = "materials"
	ChapterTypeBranchStructure ChapterType = "branch_structure"
)

// Chapter 生成的章节
type Chapter struct {
	Index       int             `json:"index"`
	Type        ChapterType     `json:"type"`
	Content     json.RawMessage `json:"content"`
	CharacterID string          `json:"characterId,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// ChapterTypeAt 按序号推导章节类型：
// 0 为主持人手册，1..playerCount 为玩家手册，playerCount+1 为物料，playerCount+2 为分支结构
func ChapterTypeAt(index, playerCount int) (ChapterType, string, error) {
	switch {
	case index == 0:
		return ChapterTypeDMHandbook, "", nil
	case index >= 1 && index <= playerCount:
		return ChapterTypePlayerHandbook, fmt.Sprintf("player-%d", index), nil
	case index == playerCount+1:
		return ChapterTypeMaterials, "", nil
	case index == playerCount+2:
		return ChapterTypeBranchStructure, "", nil
	default:
		return "", "", fmt.Errorf("chapter index %d out of range for %d players", index, playerCount)
	}
}

// TotalChaptersFor 章节总数
func TotalChaptersFor(playerCount int) int {
	return playerCount + 3
}

// PlayerIndices 全部玩家手册序号
func PlayerIndices(playerCount int) []int {
	out := make([]int, 0, playerCount)
	for i := 1; i <= playerCount; i++ {
		out = append(out, i)
	}
	return out
}

// ParallelBatch 并行生成批次；Reviewed ⊆ Completed，Completed 与 Failed 不相交
type ParallelBatch struct {
	Indices          []int `json:"indices"`
	CompletedIndices []int `json:"completedIndices"`
	FailedIndices    []int `json:"failedIndices"`
	ReviewedIndices  []int `json:"reviewedIndices"`
}

// NewParallelBatch 新批次
func NewParallelBatch(indices []int) *ParallelBatch {
	idx := append([]int(nil), indices...)
	sort.Ints(idx)
	return &ParallelBatch{
		Indices:          idx,
		CompletedIndices: []int{},
		FailedIndices:    []int{},
		ReviewedIndices:  []int{},
	}
}

// MarkCompleted 标记成功，并从失败集合移除
func (b *ParallelBatch) MarkCompleted(index int) {
	b.FailedIndices = removeInt(b.FailedIndices, index)
	b.CompletedIndices = addInt(b.CompletedIndices, index)
}

// MarkFailed 标记失败
func (b *ParallelBatch) MarkFailed(index int) {
	if containsInt(b.CompletedIndices, index) {
		return
	}
	b.FailedIndices = addInt(b.FailedIndices, index)
}

// MarkReviewed 标记已审阅，仅对已完成序号生效
func (b *ParallelBatch) MarkReviewed(index int) bool {
	if !containsInt(b.CompletedIndices, index) {
		return false
	}
	b.ReviewedIndices = addInt(b.ReviewedIndices, index)
	return true
}

// Contains 批次是否包含序号
func (b *ParallelBatch) Contains(index int) bool {
	return containsInt(b.Indices, index)
}

// NextUnreviewed 下一个已完成但未审阅的序号
func (b *ParallelBatch) NextUnreviewed() (int, bool) {
	for _, idx := range b.CompletedIndices {
		if !containsInt(b.ReviewedIndices, idx) {
			return idx, true
		}
	}
	return 0, false
}

// FullyReviewed 批次内所有序号均已审阅
func (b *ParallelBatch) FullyReviewed() bool {
	for _, idx := range b.Indices {
		if !containsInt(b.ReviewedIndices, idx) {
			return false
		}
	}
	return true
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func addInt(xs []int, v int) []int {
	if containsInt(xs, v) {
		return xs
	}
	xs = append(xs, v)
	sort.Ints(xs)
	return xs
}

func removeInt(xs []int, v int) []int {
	out := xs[:0]
	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
