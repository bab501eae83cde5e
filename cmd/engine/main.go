package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licensehub-engine/pkg/cache"
	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/db"
	"licensehub-engine/pkg/gen"
	"licensehub-engine/pkg/health"
	"licensehub-engine/pkg/logger"
	"licensehub-engine/pkg/redis"
	"licensehub-engine/pkg/server"
	"licensehub-engine/pkg/task"
	"licensehub-engine/services/extapi"
	"licensehub-engine/services/license"
	"licensehub-engine/services/lifecycle"
	"licensehub-engine/services/ops"
	"licensehub-engine/services/reconcile"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		cache.Module,
		gen.Module,

		task.Client,
		task.Server,
		task.Scheduler,

		extapi.Module,
		license.Module,
		reconcile.Module,
		lifecycle.Module,

		server.ProvideHTTPServer,
		health.Module,
		ops.Module,

		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
