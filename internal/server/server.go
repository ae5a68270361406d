// Package server wires the HTTP surface: submission intake, campaign
// management, dataset staging and the reconciliation endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/smallbiznis/incentiva/internal/audit"
	auditdomain "github.com/smallbiznis/incentiva/internal/audit/domain"
	"github.com/smallbiznis/incentiva/internal/campaign"
	campaigndomain "github.com/smallbiznis/incentiva/internal/campaign/domain"
	"github.com/smallbiznis/incentiva/internal/config"
	"github.com/smallbiznis/incentiva/internal/dataset"
	datasetdomain "github.com/smallbiznis/incentiva/internal/dataset/domain"
	"github.com/smallbiznis/incentiva/internal/ledger"
	"github.com/smallbiznis/incentiva/internal/notification"
	"github.com/smallbiznis/incentiva/internal/observability"
	obsmiddleware "github.com/smallbiznis/incentiva/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/incentiva/internal/observability/metrics"
	obstracing "github.com/smallbiznis/incentiva/internal/observability/tracing"
	"github.com/smallbiznis/incentiva/internal/organization"
	organizationdomain "github.com/smallbiznis/incentiva/internal/organization/domain"
	"github.com/smallbiznis/incentiva/internal/ratelimit"
	"github.com/smallbiznis/incentiva/internal/reconcile"
	reconciledomain "github.com/smallbiznis/incentiva/internal/reconcile/domain"
	"github.com/smallbiznis/incentiva/internal/submission"
	submissiondomain "github.com/smallbiznis/incentiva/internal/submission/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	notification.Module,
	organization.Module,
	campaign.Module,
	dataset.Module,
	ledger.Module,
	reconcile.Module,
	submission.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	db              *gorm.DB
	genID           *snowflake.Node
	auditSvc        auditdomain.Service
	campaignSvc     campaigndomain.Service
	datasetSvc      datasetdomain.Service
	organizationSvc organizationdomain.Service
	reconcileSvc    reconciledomain.Service
	submissionSvc   submissiondomain.Service
	intakeLimiter   *ratelimit.SubmissionIntakeLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AuditSvc        auditdomain.Service
	CampaignSvc     campaigndomain.Service
	DatasetSvc      datasetdomain.Service
	OrganizationSvc organizationdomain.Service
	ReconcileSvc    reconciledomain.Service
	SubmissionSvc   submissiondomain.Service
	IntakeLimiter   *ratelimit.SubmissionIntakeLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics                `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		auditSvc:        p.AuditSvc,
		campaignSvc:     p.CampaignSvc,
		datasetSvc:      p.DatasetSvc,
		organizationSvc: p.OrganizationSvc,
		reconcileSvc:    p.ReconcileSvc,
		submissionSvc:   p.SubmissionSvc,
		intakeLimiter:   p.IntakeLimiter,
		obsMetrics:      p.ObsMetrics,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/submissions", s.SubmissionIntakeRateLimit(), s.CreateSubmission)
	api.GET("/submissions", s.ListSubmissions)
	api.GET("/submissions/:id", s.GetSubmission)
	api.POST("/submissions/:id/validate", s.ValidateSubmission)
	api.POST("/submissions/:id/reject", s.RejectSubmission)

	api.POST("/campaigns", s.CreateCampaign)
	api.GET("/campaigns/:id", s.GetCampaign)

	api.POST("/campaigns/:id/datasets", s.StageDataset)
	api.POST("/campaigns/:id/reconcile", s.ReconcileCampaign)
}
