package lifecycle

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/task"
	"licensehub-engine/pkg/taskname"
)

var Module = fx.Module("lifecycle",
	fx.Provide(
		NewService,
		NewTask,
		fx.Annotate(providePeriodicSweep, fx.ResultTags(`group:"periodic_tasks"`)),
		fx.Annotate(providePeriodicReminders, fx.ResultTags(`group:"periodic_tasks"`)),
	),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.LifecycleSweep, t.HandleSweepTask)
	mux.HandleFunc(taskname.RenewalReminders, t.HandleReminderTask)
}

func providePeriodicSweep(cfg *config.Config) task.PeriodicTask {
	return task.PeriodicTask{
		Cronspec: cfg.Lifecycle.SweepCron,
		Task:     NewSweepTask(),
	}
}

func providePeriodicReminders(cfg *config.Config) task.PeriodicTask {
	return task.PeriodicTask{
		Cronspec: cfg.Lifecycle.ReminderCron,
		Task:     NewReminderTask(),
	}
}
