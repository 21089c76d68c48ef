package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/propledger/internal/config"
	invoicedomain "github.com/smallbiznis/propledger/internal/invoice/domain"
	ledgerdomain "github.com/smallbiznis/propledger/internal/ledger/domain"
	reportdomain "github.com/smallbiznis/propledger/internal/report/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewEngine builds the gin engine with recovery only; logging goes through
// zap, not gin's default writer.
func NewEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	return engine
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	LedgerSvc  ledgerdomain.Service
	ReportSvc  reportdomain.Service
}

// Server owns the HTTP surface.
type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	invoiceSvc invoicedomain.Service
	ledgerSvc  ledgerdomain.Service
	reportSvc  reportdomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		invoiceSvc: p.InvoiceSvc,
		ledgerSvc:  p.LedgerSvc,
		reportSvc:  p.ReportSvc,
	}
}

// RegisterAPIRoutes wires every endpoint onto the engine.
func (s *Server) RegisterAPIRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/invoices", s.CreateInvoice)
		v1.GET("/invoices/:id", s.GetInvoice)
		v1.GET("/invoices", s.ListInvoices)
		v1.POST("/invoices/:id/post", s.PostInvoice)
		v1.POST("/invoices/:id/payments", s.PostPayment)

		v1.POST("/credits/apply", s.ApplyTenantCredit)
		v1.POST("/deposits/refund", s.RefundDeposit)
		v1.POST("/capex", s.PostCapex)
		v1.POST("/depreciation", s.PostDepreciation)

		v1.GET("/reports/balances", s.GetAccountBalances)
		v1.GET("/reports/income-statement", s.GetIncomeStatement)
		v1.GET("/reports/balance-sheet", s.GetBalanceSheet)
		v1.GET("/reports/cash-flow", s.GetCashFlow)
		v1.GET("/reports/kpis", s.GetKPIs)
		v1.GET("/reports/tax-estimate", s.GetTaxEstimate)
		v1.GET("/reports/yearly-summary", s.GetYearlySummary)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// orgIDFromRequest reads the tenant scope from the X-Org-ID header.
func orgIDFromRequest(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.GetHeader("X-Org-ID"))
	if raw == "" {
		return 0, newValidationError("X-Org-ID", "missing_org_id", "org id header is required")
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, newValidationError("X-Org-ID", "invalid_org_id", "org id is not a valid id")
	}
	return id, nil
}

func parseID(c *gin.Context, field, raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, newValidationError(field, "invalid_id", field+" is not a valid id")
	}
	return id, nil
}

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
