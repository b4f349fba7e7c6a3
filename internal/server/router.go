package server

import (
	"github.com/abduss/sharefiles/internal/config"
	"github.com/abduss/sharefiles/internal/download"
	"github.com/abduss/sharefiles/internal/logger"
	"github.com/abduss/sharefiles/internal/metrics"
	"github.com/abduss/sharefiles/internal/upload"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config   config.Config
	Logger   *zap.Logger
	Metadata Pinger
	Blobs    Pinger
	Upload   *upload.Service
	Download *download.Service
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(logger.RequestLogger(log))
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)

	metrics.InitMetrics()
	if path := deps.Config.Metrics.PrometheusPath; path != "" {
		metrics.Register(router, path)
	}

	api := router.Group("/")
	if deps.Upload != nil {
		upload.RegisterRoutes(api, deps.Upload, log, deps.Config.Upload.MaxBodyBytes,
			RateLimit(deps.Config.Upload.RateLimit, deps.Config.Upload.RateBurst))
	}
	if deps.Download != nil {
		download.RegisterRoutes(api, deps.Download, log)
	}

	return router
}
