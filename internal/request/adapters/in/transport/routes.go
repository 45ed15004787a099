package transport

import (
	"net/http"

	"roadside/internal/shared/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig — параметры роутера
type RouterConfig struct {
	// CORSOrigins; пусто — разрешены все (dev)
	CORSOrigins []string
	// WebSocket подключается на GET /ws, если задан
	WebSocket http.HandlerFunc
}

// NewRouter собирает gin engine: recovery, correlation id, cors, access log, маршруты
func NewRouter(cfg RouterConfig, h *HTTPHandler, authMiddleware gin.HandlerFunc, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationMiddleware())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(AccessLog(log))

	r.GET("/health", handleHealth)
	if cfg.WebSocket != nil {
		r.GET("/ws", gin.WrapF(cfg.WebSocket))
	}
	h.RegisterRoutes(r, authMiddleware)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	log.Info(logger.Entry{
		Action:  "http_routes_registered",
		Message: "request routes registered",
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Authorization", HeaderCorrelationID)
	cfg.AddExposeHeaders("Content-Length", HeaderCorrelationID)
	return cfg
}
