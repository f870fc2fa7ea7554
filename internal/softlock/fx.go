package softlock

import (
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/softlock/guard"
	"github.com/craftcv/craftcv/internal/softlock/repository"
	"github.com/craftcv/craftcv/internal/softlock/service"
)

var Module = fx.Module("softlock.service",
	fx.Provide(guard.FromConfig),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
