package organization

import (
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/organization/domain"
	"github.com/craftcv/craftcv/internal/organization/repository"
	"github.com/craftcv/craftcv/internal/organization/service"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s domain.Service) plandomain.SeatCounter { return s }),
)
