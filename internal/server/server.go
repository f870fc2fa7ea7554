package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/craftcv/craftcv/internal/authorization"
	"github.com/craftcv/craftcv/internal/billing"
	billingdomain "github.com/craftcv/craftcv/internal/billing/domain"
	"github.com/craftcv/craftcv/internal/config"
	"github.com/craftcv/craftcv/internal/governance"
	"github.com/craftcv/craftcv/internal/organization"
	orgdomain "github.com/craftcv/craftcv/internal/organization/domain"
	"github.com/craftcv/craftcv/internal/plancatalog"
	"github.com/craftcv/craftcv/internal/planenforcement"
	plandomain "github.com/craftcv/craftcv/internal/planenforcement/domain"
	"github.com/craftcv/craftcv/internal/softlock"
	lockdomain "github.com/craftcv/craftcv/internal/softlock/domain"
	"github.com/craftcv/craftcv/internal/usagecounter"
	usagedomain "github.com/craftcv/craftcv/internal/usagecounter/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	plancatalog.Module,
	organization.Module,
	usagecounter.Module,
	planenforcement.Module,
	softlock.Module,
	billing.Module,
	governance.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
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
	authzSvc        authorization.Service
	organizationSvc orgdomain.Service
	usageSvc        usagedomain.Service
	planSvc         plandomain.Service
	lockSvc         lockdomain.Service
	billingSvc      billingdomain.Tracker
	governanceSvc   governance.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	DB              *gorm.DB
	GenID           *snowflake.Node
	AuthzSvc        authorization.Service
	OrganizationSvc orgdomain.Service
	UsageSvc        usagedomain.Service
	PlanSvc         plandomain.Service
	LockSvc         lockdomain.Service
	BillingSvc      billingdomain.Tracker
	GovernanceSvc   governance.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		db:              p.DB,
		genID:           p.GenID,
		authzSvc:        p.AuthzSvc,
		organizationSvc: p.OrganizationSvc,
		usageSvc:        p.UsageSvc,
		planSvc:         p.PlanSvc,
		lockSvc:         p.LockSvc,
		billingSvc:      p.BillingSvc,
		governanceSvc:   p.GovernanceSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")

	orgs := v1.Group("/organizations", Identity())
	{
		orgs.POST("", s.CreateOrganization)
	}

	api := v1.Group("", OrgContext(), Identity())
	{
		api.GET("/organization", s.requireCapability(authorization.ObjectOrganization, authorization.ActionOrganizationView), s.GetOrganization)

		members := api.Group("/members")
		{
			members.GET("", s.requireCapability(authorization.ObjectMember, authorization.ActionMemberView), s.ListMembers)
			members.POST("", s.requireCapability(authorization.ObjectMember, authorization.ActionMemberAdd), s.AddMember)
			members.DELETE("/:userID", s.requireCapability(authorization.ObjectMember, authorization.ActionMemberRemove), s.RemoveMember)
		}

		locks := api.Group("/locks")
		{
			locks.POST("", s.requireCapability(authorization.ObjectLock, authorization.ActionLockAcquire), s.AcquireLock)
			locks.POST("/check-permission", s.requireCapability(authorization.ObjectLock, authorization.ActionLockView), s.CheckLockPermission)
			locks.POST("/cleanup", s.requireCapability(authorization.ObjectLock, authorization.ActionLockForceRelease), s.CleanupExpiredLocks)
			locks.GET("/expired", s.requireCapability(authorization.ObjectLock, authorization.ActionLockView), s.ListExpiredLocks)
			locks.GET("", s.requireCapability(authorization.ObjectLock, authorization.ActionLockView), s.ListLocks)
			locks.GET("/:id", s.requireCapability(authorization.ObjectLock, authorization.ActionLockView), s.GetLock)
			locks.DELETE("/:id", s.requireCapability(authorization.ObjectLock, authorization.ActionLockRelease), s.ReleaseLock)
			locks.POST("/:id/force-release", s.requireCapability(authorization.ObjectLock, authorization.ActionLockForceRelease), s.ForceReleaseLock)
			locks.POST("/:id/extend", s.requireCapability(authorization.ObjectLock, authorization.ActionLockExtend), s.ExtendLock)
		}

		plan := api.Group("/plan")
		{
			plan.GET("", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlan)
			plan.POST("", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanUpdate), s.EnsurePlan)
			plan.PATCH("", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanUpdate), s.UpdatePlan)
			plan.GET("/check-seats", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanCheck), s.CheckSeatLimit)
			plan.POST("/check-usage", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanCheck), s.CheckUsageLimit)
			plan.GET("/features/:feature", s.requireCapability(authorization.ObjectPlan, authorization.ActionPlanCheck), s.IsFeatureEnabled)
		}

		usage := api.Group("/usage")
		{
			usage.GET("/:counterType", s.requireCapability(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsage)
			usage.POST("/increment", s.requireCapability(authorization.ObjectUsage, authorization.ActionUsageIncrement), s.IncrementUsage)
			usage.POST("/reset", s.requireCapability(authorization.ObjectUsage, authorization.ActionUsageReset), s.ResetUsage)
		}

		api.POST("/authorize", s.Authorize)

		billingGroup := api.Group("/billing")
		{
			billingGroup.GET("/overages", s.requireCapability(authorization.ObjectBilling, authorization.ActionBillingView), s.ListOverages)
			billingGroup.GET("/overages/summary", s.requireCapability(authorization.ObjectBilling, authorization.ActionBillingView), s.OverageSummary)
		}
	}
}
