package ledger

import (
	"github.com/smallbiznis/propledger/internal/ledger/service"
	"go.uber.org/fx"
)

// Module wires the posting engine.
var Module = fx.Module("ledger.service",
	fx.Provide(service.NewService),
)
