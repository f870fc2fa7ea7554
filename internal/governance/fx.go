package governance

import "go.uber.org/fx"

var Module = fx.Module("governance.facade",
	fx.Provide(New),
)
