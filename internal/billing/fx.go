package billing

import (
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/billing/repository"
	"github.com/craftcv/craftcv/internal/billing/service"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
