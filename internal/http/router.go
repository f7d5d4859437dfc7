package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/shiftbot/backend/internal/config"
	"github.com/shiftbot/backend/internal/http/handlers"
	"github.com/shiftbot/backend/internal/http/middleware"
	"github.com/shiftbot/backend/internal/service"
	"github.com/shiftbot/backend/internal/store"

	_ "github.com/shiftbot/backend/docs"
)

func Router(cfg config.Config, processor *service.Processor, st *store.Store, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Webhook-Secret", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Processor: processor,
		Store:     st,
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)

	hook := r.Group("")
	hook.Use(middleware.WebhookSecret(cfg.WebhookSecret))
	{
		hook.POST("/webhook", h.Webhook)
	}

	api := r.Group("/api")
	{
		api.GET("/logs", h.LogsList)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
