package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/propledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	"github.com/smallbiznis/propledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config controls the depreciation worker's cadence and batch size.
type Config struct {
	Interval  time.Duration
	BatchSize int
}

func DefaultConfig() Config {
	return Config{Interval: time.Hour, BatchSize: 100}
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultConfig().Interval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultConfig().BatchSize
	}
	return c
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Ledger  ledgerdomain.Service
	Clock   clock.Clock
	Metrics *metrics.PostingMetrics `optional:"true"`
	Cfg     Config                  `optional:"true"`
}

// Worker walks active assets and posts each overdue month of straight-line
// depreciation through the ledger.
type Worker struct {
	db      *gorm.DB
	log     *zap.Logger
	ledger  ledgerdomain.Service
	clock   clock.Clock
	metrics *metrics.PostingMetrics
	cfg     Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:      p.DB,
		log:     p.Log.Named("scheduler.depreciation"),
		ledger:  p.Ledger,
		clock:   p.Clock,
		metrics: p.Metrics,
		cfg:     p.Cfg.withDefaults(),
	}
}

// RunForever ticks until the context is cancelled. Errors are logged and
// retried on the next tick.
func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil {
			w.log.Error("depreciation run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce posts one charge for every asset with an overdue period and
// returns the number of assets charged.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	now := w.clock.Now().UTC()

	var assets []PropertyAsset
	err := w.db.WithContext(ctx).Raw(
		`SELECT *
		 FROM property_assets
		 WHERE active AND months_depreciated < useful_life_months
		 ORDER BY in_service_date
		 LIMIT ?`,
		w.cfg.BatchSize,
	).Scan(&assets).Error
	if err != nil {
		return 0, err
	}

	charged := 0
	for _, asset := range assets {
		if asset.NextChargeDate().After(now) {
			continue
		}
		if err := w.chargeAsset(ctx, asset, now); err != nil {
			w.log.Error("asset charge failed",
				zap.String("asset_id", asset.ID.String()),
				zap.Error(err),
			)
			continue
		}
		charged++
	}

	if charged > 0 {
		w.metrics.ObserveDepreciationBatch(charged)
		w.log.Info("depreciation batch posted", zap.Int("assets", charged))
	}
	return charged, nil
}

func (w *Worker) chargeAsset(ctx context.Context, asset PropertyAsset, now time.Time) error {
	amount := asset.MonthlyAmount()
	if amount <= 0 {
		// Nothing left to write off; retire the schedule.
		return w.retireAsset(ctx, asset, now)
	}

	if _, err := w.ledger.PostDepreciation(ctx, ledgerdomain.DepreciationRequest{
		OrgID:       asset.OrgID,
		PropertyID:  asset.PropertyID,
		Amount:      amount,
		Date:        asset.NextChargeDate(),
		Description: "Depreciation: " + asset.Name,
	}); err != nil {
		return err
	}

	return w.db.WithContext(ctx).Exec(
		`UPDATE property_assets
		 SET months_depreciated = months_depreciated + 1,
		     active = months_depreciated + 1 < useful_life_months,
		     updated_at = ?
		 WHERE id = ?`,
		now,
		asset.ID,
	).Error
}

func (w *Worker) retireAsset(ctx context.Context, asset PropertyAsset, now time.Time) error {
	return w.db.WithContext(ctx).Exec(
		`UPDATE property_assets SET active = FALSE, updated_at = ? WHERE id = ?`,
		now,
		asset.ID,
	).Error
}

// Module starts the worker alongside the application.
var Module = fx.Module("scheduler.depreciation",
	fx.Provide(NewWorker),
	fx.Invoke(func(lc fx.Lifecycle, w *Worker) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					w.RunForever(ctx)
				}()
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)
