package usagecounter

import (
	"github.com/craftcv/craftcv/internal/usagecounter/repository"
	"github.com/craftcv/craftcv/internal/usagecounter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usagecounter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
