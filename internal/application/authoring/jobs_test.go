package authoring

import (
	"context"
	"errors"
	"testing"

	"z-script-ai-api/internal/domain/entity"
	"z-script-ai-api/internal/infrastructure/messaging"
	"z-script-ai-api/internal/workflow/port"
	apperrors "z-script-ai-api/pkg/errors"
)

type fakePublisher struct {
	err  error
	jobs []*messaging.AuthoringJobMessage
	kind []string
}

func (p *fakePublisher) PublishAuthoringJob(_ context.Context, jobType string, job *messaging.AuthoringJobMessage) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	p.jobs = append(p.jobs, job)
	p.kind = append(p.kind, jobType)
	return "1-0", nil
}

type fakeRegistry map[string]messaging.MessageHandler

func (r fakeRegistry) RegisterHandler(msgType string, h messaging.MessageHandler) { r[msgType] = h }

func TestDispatcherAdvance(t *testing.T) {
	t.Run("sync when async disabled", func(t *testing.T) {
		env := newTestEnv(t, 2, true)
		pub := &fakePublisher{}
		s := env.create(t, entity.SessionModeStaged)

		got, accepted, err := NewDispatcher(env.orch, pub, false).Advance(context.Background(), s.ID, "req-1")
		if err != nil || accepted {
			t.Fatalf("accepted=%v err=%v", accepted, err)
		}
		if got.State != entity.StatePlanReview || len(pub.jobs) != 0 {
			t.Fatalf("state=%s jobs=%d", got.State, len(pub.jobs))
		}
	})

	t.Run("async enqueues job", func(t *testing.T) {
		env := newTestEnv(t, 2, true)
		pub := &fakePublisher{}
		s := env.create(t, entity.SessionModeStaged)

		got, accepted, err := NewDispatcher(env.orch, pub, true).Advance(context.Background(), s.ID, "req-1")
		if err != nil || !accepted {
			t.Fatalf("accepted=%v err=%v", accepted, err)
		}
		if got.State != entity.StateDraft || env.gen.callCount() != 0 {
			t.Fatalf("session advanced synchronously: %s", got.State)
		}
		if len(pub.jobs) != 1 || pub.kind[0] != messaging.JobTypeAdvance || pub.jobs[0].SessionID != s.ID || pub.jobs[0].RequestID != "req-1" {
			t.Fatalf("unexpected job: %+v", pub.jobs)
		}
	})

	t.Run("ephemeral sessions stay in process", func(t *testing.T) {
		env := newTestEnv(t, 2, true)
		pub := &fakePublisher{}
		s, err := env.orch.Create(context.Background(), CreateSessionInput{
			ConfigID:   "cfg-1",
			Mode:       entity.SessionModeStaged,
			Credential: &port.EphemeralCredential{Provider: "openai", APIKey: "sk-test-abcdef"},
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		_, accepted, err := NewDispatcher(env.orch, pub, true).Advance(context.Background(), s.ID, "")
		if err != nil || accepted || len(pub.jobs) != 0 {
			t.Fatalf("accepted=%v jobs=%d err=%v", accepted, len(pub.jobs), err)
		}
		if env.eph.callCount() != 1 {
			t.Fatalf("ephemeral calls = %d", env.eph.callCount())
		}
	})

	t.Run("no adapter rejected before enqueue", func(t *testing.T) {
		env := newTestEnv(t, 2, false)
		pub := &fakePublisher{}
		s := env.create(t, entity.SessionModeStaged)
		_, _, err := NewDispatcher(env.orch, pub, true).Advance(context.Background(), s.ID, "")
		if !apperrors.HasCode(err, apperrors.CodeConfiguration) || len(pub.jobs) != 0 {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})

	t.Run("publish failure", func(t *testing.T) {
		env := newTestEnv(t, 2, true)
		pub := &fakePublisher{err: errors.New("redis down")}
		s := env.create(t, entity.SessionModeStaged)
		_, _, err := NewDispatcher(env.orch, pub, true).Advance(context.Background(), s.ID, "")
		if !apperrors.HasCode(err, apperrors.CodeMessagingError) {
			t.Fatalf("expected messaging error, got %v", err)
		}
	})
}

func TestDispatcherApproveBookkeepingStaysSync(t *testing.T) {
	env := newTestEnv(t, 2, true)
	pub := &fakePublisher{}
	d := NewDispatcher(env.orch, pub, true)

	s := reviewSession("s-1", 2, 0, 1, 2)
	s.Batch = entity.NewParallelBatch([]int{1, 2})
	s.Batch.MarkCompleted(1)
	s.Batch.MarkCompleted(2)
	s.CurrentChapterIndex = 1
	env.put(t, s)

	got, accepted, err := d.Approve(context.Background(), s.ID, entity.PhaseChapter, "", "")
	if err != nil || accepted {
		t.Fatalf("accepted=%v err=%v", accepted, err)
	}
	if got.CurrentChapterIndex != 2 || len(pub.jobs) != 0 {
		t.Fatalf("cursor=%d jobs=%d", got.CurrentChapterIndex, len(pub.jobs))
	}

	_, accepted, err = d.Approve(context.Background(), s.ID, entity.PhaseChapter, "looks good", "req-9")
	if err != nil || !accepted {
		t.Fatalf("accepted=%v err=%v", accepted, err)
	}
	if len(pub.jobs) != 1 || pub.kind[0] != messaging.JobTypeApprove || pub.jobs[0].Phase != string(entity.PhaseChapter) || pub.jobs[0].Notes != "looks good" {
		t.Fatalf("unexpected job: %+v", pub.jobs)
	}
}

func TestJobHandlersRunOrchestrator(t *testing.T) {
	env := newTestEnv(t, 2, true)
	reg := fakeRegistry{}
	env.orch.RegisterJobHandlers(reg)
	s := env.create(t, entity.SessionModeStaged)

	msg, err := messaging.NewMessage("job-1", messaging.JobTypeAdvance, s.ID, &messaging.AuthoringJobMessage{JobID: "job-1", SessionID: s.ID})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := reg[messaging.JobTypeAdvance](context.Background(), msg); err != nil {
		t.Fatalf("advance job: %v", err)
	}
	if got := env.reload(t, s.ID); got.State != entity.StatePlanReview {
		t.Fatalf("state = %s", got.State)
	}

	// 状态错误直接确认，不再重投
	if err := reg[messaging.JobTypeAdvance](context.Background(), msg); err != nil {
		t.Fatalf("state error should be acknowledged, got %v", err)
	}

	approve, _ := messaging.NewMessage("job-2", messaging.JobTypeApprove, s.ID, &messaging.AuthoringJobMessage{SessionID: s.ID, Phase: "plan"})
	if err := reg[messaging.JobTypeApprove](context.Background(), approve); err != nil {
		t.Fatalf("approve job: %v", err)
	}
	if got := env.reload(t, s.ID); got.State != entity.StateDesignReview {
		t.Fatalf("state = %s", got.State)
	}
}

func TestJobOutcome(t *testing.T) {
	ctx := context.Background()
	if err := jobOutcome(ctx, nil, apperrors.StateError("bad state")); err != nil {
		t.Fatalf("state error returned: %v", err)
	}
	if err := jobOutcome(ctx, nil, apperrors.ConfigurationError("no provider")); err != nil {
		t.Fatalf("configuration error returned: %v", err)
	}
	cause := apperrors.New(apperrors.CodeDatabaseError, "db down")
	if err := jobOutcome(ctx, nil, cause); !errors.Is(err, cause) {
		t.Fatalf("transient error swallowed: %v", err)
	}
}
