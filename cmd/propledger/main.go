package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/propledger/internal/audit"
	"github.com/smallbiznis/propledger/internal/chart"
	"github.com/smallbiznis/propledger/internal/clock"
	"github.com/smallbiznis/propledger/internal/config"
	"github.com/smallbiznis/propledger/internal/events"
	"github.com/smallbiznis/propledger/internal/invoice"
	"github.com/smallbiznis/propledger/internal/ledger"
	ledgerservice "github.com/smallbiznis/propledger/internal/ledger/service"
	"github.com/smallbiznis/propledger/internal/logger"
	"github.com/smallbiznis/propledger/internal/migration"
	"github.com/smallbiznis/propledger/internal/observability/metrics"
	"github.com/smallbiznis/propledger/internal/report"
	"github.com/smallbiznis/propledger/internal/scheduler"
	"github.com/smallbiznis/propledger/internal/server"
	"github.com/smallbiznis/propledger/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		chart.Module,

		fx.Provide(metrics.Posting),
		fx.Provide(func(cfg config.Config) ledgerservice.Config {
			return ledgerservice.Config{MinPartialAllocation: cfg.MinPartialAllocation}
		}),
		fx.Provide(func(cfg config.Config) scheduler.Config {
			return scheduler.Config{
				Interval:  cfg.DepreciationInterval,
				BatchSize: cfg.DepreciationBatchSize,
			}
		}),

		events.Module,
		audit.Module,
		invoice.Module,
		ledger.Module,
		report.Module,
		scheduler.Module,

		fx.Provide(server.NewEngine),
		fx.Provide(server.NewServer),
		fx.Invoke(func(s *server.Server) {
			s.RegisterAPIRoutes()
		}),
		fx.Invoke(server.RunHTTP),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
