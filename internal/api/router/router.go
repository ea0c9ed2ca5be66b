package router

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/content-ops/config"
	_ "github.com/d60-Lab/content-ops/docs"
	"github.com/d60-Lab/content-ops/internal/api/handler"
	"github.com/d60-Lab/content-ops/internal/api/middleware"
)

// New 组装路由与中间件
func New(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	registerValidations()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	if cfg.Tracing.Endpoint != "" {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.POST("/auth/login", h.Login)

	publish := api.Group("/publish")
	if cfg.Auth.JWTSecret != "" {
		publish.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
	}
	publish.POST("/tasks", h.CreateTask)
	publish.GET("/tasks/:id", h.GetTask)
	publish.POST("/tasks/:id/cancel", h.CancelTask)
	publish.GET("/history", h.ListHistory)
	publish.DELETE("/history", h.CleanupHistory)
	publish.GET("/statistics", h.GetStatistics)
	publish.GET("/platforms", h.ListPlatforms)
	publish.POST("/queue/process", h.ProcessQueue)

	return r
}

// registerValidations 注册自定义 binding 校验规则
func registerValidations() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	_ = v.RegisterValidation("rfc3339", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
}
