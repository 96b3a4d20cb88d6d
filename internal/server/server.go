// Package server exposes the session engine over HTTP.
package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/swapdesk/internal/trade"
	"github.com/Aidin1998/swapdesk/internal/ws"
)

// Server represents the HTTP server.
type Server struct {
	logger *zap.Logger
	engine *trade.Engine
	hub    *ws.Hub
}

// NewServer creates a new HTTP server. The hub may be nil when no event
// stream is exposed.
func NewServer(logger *zap.Logger, engine *trade.Engine, hub *ws.Hub) *Server {
	return &Server{
		logger: logger.Named("server"),
		engine: engine,
		hub:    hub,
	}
}

// Router creates the HTTP router.
func (s *Server) Router() *gin.Engine {
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, "2006-01-02T15:04:05Z07:00", true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(cors.Default())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.hub != nil {
		router.GET("/ws/events", s.hub.ServeWS)
	}

	api := router.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			sessions := v1.Group("/sessions")
			{
				sessions.POST("", s.handleBeginSession)
				sessions.GET("/:id", s.handleGetSession)
				sessions.GET("/:id/proposal", s.handleSnapshot)
				sessions.POST("/:id/items", s.handleAddItem)
				sessions.DELETE("/:id/items/:ref", s.handleRemoveItem)
				sessions.POST("/:id/items/bulk", s.handleBulkAdd)
				sessions.PUT("/:id/currency", s.handleSetCurrency)
				sessions.POST("/:id/clear", s.handleClear)
				sessions.POST("/:id/lock", s.handleLock)
				sessions.POST("/:id/confirm", s.handleConfirm)
				sessions.POST("/:id/cancel", s.handleCancel)
			}
			v1.GET("/participants/:id/session", s.handleFindSession)
		}
	}

	return router
}
