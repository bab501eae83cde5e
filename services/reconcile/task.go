package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"licensehub-engine/pkg/taskname"
)

// SyncPayload tunes one queued reconciliation run.
type SyncPayload struct {
	MaxLicenses    int  `json:"max_licenses,omitempty"`
	SkipValidation bool `json:"skip_validation,omitempty"`
}

func NewSyncTask(payload SyncPayload) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.LicenseSync, raw, asynq.Queue("default")), nil
}

func NewPushTask() *asynq.Task {
	return asynq.NewTask(taskname.LicensePush, nil, asynq.Queue("low"))
}

// Task exposes the reconciliation service as asynq handlers.
type Task struct {
	svc *Service
}

func NewTask(svc *Service) *Task {
	return &Task{svc: svc}
}

func (t *Task) HandleSyncTask(ctx context.Context, task *asynq.Task) error {
	var payload SyncPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
	}

	summary, err := t.svc.SyncFromRemote(ctx, FetchOptions{
		MaxLicenses:    payload.MaxLicenses,
		SkipValidation: payload.SkipValidation,
	})
	if err != nil {
		zap.L().Error("scheduled reconciliation failed",
			zap.String("task_type", task.Type()),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("scheduled reconciliation finished",
		zap.String("task_type", task.Type()),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
	)

	return nil
}

func (t *Task) HandlePushTask(ctx context.Context, task *asynq.Task) error {
	summary, err := t.svc.PushToRemote(ctx)
	if err != nil {
		zap.L().Error("scheduled push failed",
			zap.String("task_type", task.Type()),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("scheduled push finished",
		zap.String("task_type", task.Type()),
		zap.Int("pushed", summary.Pushed),
		zap.Int("failed", summary.Failed),
	)

	return nil
}
