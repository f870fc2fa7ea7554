package observability

import (
	"go.uber.org/fx"

	"github.com/craftcv/craftcv/internal/observability/metrics"
)

var Module = fx.Module("observability",
	fx.Provide(metrics.NewRegistry),
	fx.Provide(metrics.New),
)
