package router

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/lldsync/lldsync/api/handler"
	"github.com/lldsync/lldsync/internal/config"
	"github.com/lldsync/lldsync/internal/service"
	"github.com/lldsync/lldsync/pkg/logger"
)

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, lldService *service.LLDService) *gin.Engine {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())

	lldHandler := handler.NewLLDHandler(lldService, cfg.Server.MaxPayload, cfg.LLD.DefaultLifetime)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "lldsync",
			"version": "1.0.0",
			"status":  "running",
		})
	})

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", lldHandler.Health)

		lld := v1.Group("/lld")
		{
			lld.GET("/rules", lldHandler.ListRules)
			lld.POST("/rules", lldHandler.ImportRules)
			lld.POST("/rules/:rule_id/discovery", lldHandler.Discovery)
			lld.POST("/rules/:rule_id/cancel", lldHandler.Cancel)
			lld.POST("/batch", lldHandler.Batch)
			lld.GET("/runs/:run_id/audit", lldHandler.RunAudit)
			lld.GET("/hosts/:id/audit", lldHandler.HostAudit)
			lld.GET("/groups/:id/audit", lldHandler.GroupAudit)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}

// RequestIDMiddleware 请求ID中间件
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// LoggingMiddleware 日志中间件
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"duration":   time.Since(start),
			"client_ip":  c.ClientIP(),
		})
		if status >= 400 {
			entry.Warn("HTTP request failed")
			return
		}
		entry.Debug("HTTP request")
	}
}
