package handle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with logging, recovery and CORS.
func NewRouter(h *Handle, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))
	r.Use(corsMiddleware())
	h.RegisterRoutes(r)
	return r
}

func (h *Handle) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.PUT("/sessions/:id/engine", h.SetEngine)
		api.POST("/sessions/:id/media", h.UploadMedia)
		api.POST("/sessions/:id/analysis", h.Analyze)
		api.POST("/sessions/:id/chat", h.Chat)
		api.POST("/sessions/:id/research", h.Research)
		api.POST("/sessions/:id/view/zoom", h.Zoom)
		api.PATCH("/sessions/:id/view", h.PatchView)
		api.POST("/sessions/:id/view/reset", h.ResetView)
		api.GET("/sessions/:id/overlay", h.Overlay)
		api.GET("/sessions/:id/overlay.svg", h.OverlaySVG)
		api.GET("/sessions/:id/snapshot", h.Snapshot)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}).Info("http request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-Timeout")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
