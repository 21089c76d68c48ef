package report

import (
	"github.com/smallbiznis/propledger/internal/report/service"
	"go.uber.org/fx"
)

// Module wires the reporting reads.
var Module = fx.Module("report.service",
	fx.Provide(service.NewService),
)
