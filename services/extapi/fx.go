package extapi

import (
	"go.uber.org/fx"
)

var Module = fx.Module("extapi.module",
	fx.Provide(
		NewClient,
		fx.Annotate(NewHealthChecker, fx.ResultTags(`group:"health_checkers"`)),
	),
)
