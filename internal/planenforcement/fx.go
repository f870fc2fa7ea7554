package planenforcement

import (
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/planenforcement/domain"
	"github.com/craftcv/craftcv/internal/planenforcement/repository"
	"github.com/craftcv/craftcv/internal/planenforcement/service"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

var Module = fx.Module("planenforcement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s domain.Service) usagedomain.LimitResolver { return s }),
)
