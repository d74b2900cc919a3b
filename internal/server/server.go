// Package server wires the HTTP API: usage limit checks, conversion
// booking, subscription linking, the payment webhook, and the cron
// reconcile endpoint.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/extractolabs/conversor/internal/auth"
	authdomain "github.com/extractolabs/conversor/internal/auth/domain"
	"github.com/extractolabs/conversor/internal/config"
	"github.com/extractolabs/conversor/internal/conversion"
	conversiondomain "github.com/extractolabs/conversor/internal/conversion/domain"
	"github.com/extractolabs/conversor/internal/entitlement"
	entdomain "github.com/extractolabs/conversor/internal/entitlement/domain"
	"github.com/extractolabs/conversor/internal/mercadopago"
	obsmetrics "github.com/extractolabs/conversor/internal/observability/metrics"
	obstracing "github.com/extractolabs/conversor/internal/observability/tracing"
	"github.com/extractolabs/conversor/internal/ratelimit"
	"github.com/extractolabs/conversor/internal/subscription"
	subscriptiondomain "github.com/extractolabs/conversor/internal/subscription/domain"
	"github.com/extractolabs/conversor/internal/usage"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	auth.Module,
	entitlement.Module,
	mercadopago.Module,
	ratelimit.Module,
	subscription.Module,
	usage.Module,
	conversion.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(httpMetrics)
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	verifier        authdomain.Verifier
	entitlementSvc  entdomain.Service
	subscriptionSvc subscriptiondomain.Service
	conversionSvc   conversiondomain.Service
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Verifier        authdomain.Verifier
	EntitlementSvc  entdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	ConversionSvc   conversiondomain.Service
	ObsMetrics      *obsmetrics.Metrics `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		verifier:        p.Verifier,
		entitlementSvc:  p.EntitlementSvc,
		subscriptionSvc: p.SubscriptionSvc,
		conversionSvc:   p.ConversionSvc,
		obsMetrics:      p.ObsMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")

	api.GET("/usage/limit", s.OptionalAuth(), s.CheckUsageLimit)

	api.POST("/webhooks/mercadopago", s.MercadoPagoWebhook)
	api.GET("/cron/check-subscriptions", s.CheckSubscriptions)

	api.POST("/conversions", s.OptionalAuth(), s.CompleteConversion)
	api.GET("/conversions", s.AuthRequired(), s.ConversionHistory)

	api.POST("/subscriptions/link", s.AuthRequired(), s.LinkSubscription)
	api.POST("/subscriptions/change-plan", s.AuthRequired(), s.ChangePlan)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
