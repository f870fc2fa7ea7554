package plancatalog

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("plancatalog",
	fx.Provide(func(log *zap.Logger) (Catalog, error) {
		return NewHolder(log)
	}),
)
