package license

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("license.module",
	fx.Provide(
		NewService,
		provideStore,
	),
	fx.Invoke(migrate),
)

func provideStore(db *gorm.DB) Store {
	return NewStore(db)
}

func migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&License{}); err != nil {
		zap.L().Error("failed to migrate license schema", zap.Error(err))
		return err
	}
	return nil
}
