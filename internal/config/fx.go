package config

import "go.uber.org/fx"

// Module loads configuration once for the whole application.
var Module = fx.Module("config",
	fx.Provide(Load),
)
