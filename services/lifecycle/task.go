package lifecycle

import (
	"context"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"licensehub-engine/pkg/taskname"
)

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(taskname.LifecycleSweep, nil, asynq.Queue("critical"))
}

func NewReminderTask() *asynq.Task {
	return asynq.NewTask(taskname.RenewalReminders, nil, asynq.Queue("default"))
}

// Task exposes the lifecycle service as asynq handlers.
type Task struct {
	svc *Service
}

func NewTask(svc *Service) *Task {
	return &Task{svc: svc}
}

func (t *Task) HandleSweepTask(ctx context.Context, task *asynq.Task) error {
	summary, err := t.svc.ProcessExpirations(ctx)
	if err != nil {
		zap.L().Error("scheduled expiration sweep failed",
			zap.String("task_type", task.Type()),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("scheduled expiration sweep finished",
		zap.String("task_type", task.Type()),
		zap.Int("scanned", summary.Scanned),
		zap.Int("suspended", summary.Suspended),
	)

	return nil
}

func (t *Task) HandleReminderTask(ctx context.Context, task *asynq.Task) error {
	summary, err := t.svc.SendRenewalReminders(ctx)
	if err != nil {
		zap.L().Error("scheduled reminder run failed",
			zap.String("task_type", task.Type()),
			zap.Error(err),
		)
		return err
	}

	zap.L().Info("scheduled reminder run finished",
		zap.String("task_type", task.Type()),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return nil
}
