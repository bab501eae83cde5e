package reconcile

import (
	"github.com/hibiken/asynq"
	"go.uber.org/fx"

	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/task"
	"licensehub-engine/pkg/taskname"
	"licensehub-engine/services/extapi"
)

var Module = fx.Module("reconcile",
	fx.Provide(
		func(client *extapi.Client) RemoteGateway { return client },
		NewService,
		NewTask,
		fx.Annotate(providePeriodicSync, fx.ResultTags(`group:"periodic_tasks"`)),
		fx.Annotate(providePeriodicPush, fx.ResultTags(`group:"periodic_tasks"`)),
	),
	fx.Invoke(registerHandlers),
)

func registerHandlers(mux *asynq.ServeMux, t *Task) {
	mux.HandleFunc(taskname.LicenseSync, t.HandleSyncTask)
	mux.HandleFunc(taskname.LicensePush, t.HandlePushTask)
}

func providePeriodicSync(cfg *config.Config) task.PeriodicTask {
	syncTask, err := NewSyncTask(SyncPayload{})
	if err != nil {
		return task.PeriodicTask{}
	}
	return task.PeriodicTask{
		Cronspec: cfg.Sync.Cron,
		Task:     syncTask,
	}
}

func providePeriodicPush(cfg *config.Config) task.PeriodicTask {
	return task.PeriodicTask{
		Cronspec: cfg.Sync.PushCron,
		Task:     NewPushTask(),
	}
}
