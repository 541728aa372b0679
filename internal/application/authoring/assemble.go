package authoring

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"

	"z-script-ai-api/internal/domain/entity"
	apperrors "z-script-ai-api/pkg/errors"
	"z-script-ai-api/pkg/logger"
	"z-script-ai-api/pkg/metrics"
	"z-script-ai-api/pkg/tracer"
)

// AssembleScript 组装最终剧本；已组装时直接返回已有剧本
func (o *Orchestrator) AssembleScript(ctx context.Context, id string) (*entity.Script, error) {
	ctx, span := tracer.Start(ctx, "authoring.AssembleScript")
	defer span.End()
	ctx = logger.WithSession(ctx, id)

	s, err := o.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.State != entity.StateCompleted {
		return nil, apperrors.StateError("assembling requires state %s, session is in %s", entity.StateCompleted, s.State)
	}
	cfg, err := o.loadConfig(ctx, s.ConfigID)
	if err != nil {
		return nil, err
	}
	return o.assemble(ctx, s, cfg)
}

// GetScript 获取已组装的剧本
func (o *Orchestrator) GetScript(ctx context.Context, id string) (*entity.Script, error) {
	script, err := o.scripts.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load script")
	}
	if script == nil {
		return nil, apperrors.Newf(apperrors.CodeScriptNotFound, "script %s not found", id)
	}
	return script, nil
}

// assemble 构建并保存剧本，随后在会话上记录剧本引用
func (o *Orchestrator) assemble(ctx context.Context, s *entity.AuthoringSession, cfg *entity.ScriptConfig) (*entity.Script, error) {
	if s.ScriptID != "" {
		script, err := o.scripts.GetByID(ctx, s.ScriptID)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to load script")
		}
		if script != nil {
			return script, nil
		}
	}

	script, err := buildScript(s)
	if err != nil {
		return nil, err
	}
	script.Title = cfg.Title

	persist := func(ctx context.Context) error {
		if err := o.scripts.Store(ctx, script); err != nil {
			return apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to store script")
		}
		s.ScriptID = script.ID
		return o.save(ctx, s)
	}
	if o.tx != nil {
		err = o.tx.WithTransaction(ctx, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		s.ScriptID = ""
		return nil, err
	}

	metrics.ScriptsAssembled.Inc()
	logger.Info(ctx, "script assembled", "script_id", script.ID, "players", len(script.PlayerHandbooks))
	return script, nil
}

// buildScript 按序号分类章节的有效内容
func buildScript(s *entity.AuthoringSession) (*entity.Script, error) {
	if len(s.Chapters) == 0 {
		return nil, apperrors.New(apperrors.CodeAssemblyFailed, "session has no chapters")
	}

	chapters := append([]entity.Chapter{}, s.Chapters...)
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Index < chapters[j].Index })

	script := &entity.Script{
		ID:              uuid.NewString(),
		SessionID:       s.ID,
		ConfigID:        s.ConfigID,
		PlayerHandbooks: []entity.PlayerHandbook{},
		Materials:       []json.RawMessage{},
		CreatedAt:       time.Now().UTC(),
	}
	for _, ch := range chapters {
		content, _ := s.EffectiveChapterContent(ch.Index)
		switch ch.Type {
		case entity.ChapterTypeDMHandbook:
			if script.DMHandbook != nil {
				return nil, apperrors.New(apperrors.CodeAssemblyFailed, "script has more than one dm handbook")
			}
			script.DMHandbook = content
		case entity.ChapterTypePlayerHandbook:
			script.PlayerHandbooks = append(script.PlayerHandbooks, entity.PlayerHandbook{
				Index:       ch.Index,
				CharacterID: ch.CharacterID,
				Content:     content,
			})
		case entity.ChapterTypeMaterials:
			script.Materials = append(script.Materials, splitMaterials(content)...)
		case entity.ChapterTypeBranchStructure:
			if script.BranchStructure != nil {
				return nil, apperrors.New(apperrors.CodeAssemblyFailed, "script has more than one branch structure")
			}
			script.BranchStructure = content
		}
	}

	if script.DMHandbook == nil {
		return nil, apperrors.New(apperrors.CodeAssemblyFailed, "script is missing the dm handbook")
	}
	if script.BranchStructure == nil {
		return nil, apperrors.New(apperrors.CodeAssemblyFailed, "script is missing the branch structure")
	}
	return script, nil
}

// splitMaterials 物料章节为数组时展开为多个条目
func splitMaterials(content json.RawMessage) []json.RawMessage {
	var items []json.RawMessage
	if err := json.Unmarshal(content, &items); err == nil {
		return items
	}
	return []json.RawMessage{content}
}
