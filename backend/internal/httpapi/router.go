package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docSyncServer/backend/internal/httpapi/handlers"
	"docSyncServer/backend/internal/httpapi/middleware"
)

type RouterConfig struct {
	Auth         middleware.AuthConfig
	AllowOrigins []string
	// nil 时不挂 /metrics
	Metrics prometheus.Gatherer
}

// NewRouter /healthz、/metrics 不需要鉴权，其余路由都挂鉴权中间件
func NewRouter(cfg RouterConfig, h *handlers.Handlers, wsConnect gin.HandlerFunc, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{})))
	}
	r.NoRoute(h.NotFound)

	auth := middleware.AuthMiddleware(cfg.Auth, log)

	collab := r.Group("/collab")
	collab.Use(auth)
	collab.GET("/ws", wsConnect)
	collab.POST("/documents/:docId/edit", h.EditDocument)
	collab.GET("/documents/:docId", h.GetDocument)
	collab.POST("/documents/:docId/share", h.ShareDocument)
	collab.DELETE("/documents/:docId/share", h.UnshareDocument)
	collab.GET("/documents/:docId/shares", h.ListDocumentShares)
	collab.GET("/documents/:docId/presence", h.Presence)
	collab.GET("/shared-with/:userId", h.SharedWith)

	versions := r.Group("/versions")
	versions.Use(auth)
	versions.POST("", h.CreateVersion)
	versions.GET("/:id", h.GetVersion)
	versions.GET("/document/:documentId", h.ListVersions)
	versions.GET("/document/:documentId/history", h.VersionHistory)
	versions.GET("/document/:documentId/contributions", h.DocumentContributions)
	versions.POST("/revert/:documentId/:versionId", h.RevertVersion)
	versions.GET("/user/:userId/contributions", h.UserContributions)

	return r
}
