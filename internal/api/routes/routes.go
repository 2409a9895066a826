package routes

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"channel-chat/internal/api/handlers"
	"channel-chat/internal/api/middleware"
	"channel-chat/internal/config"
	"channel-chat/internal/directory"
	"channel-chat/internal/relay"
	"channel-chat/internal/store"
)

type Router struct {
	engine         *gin.Engine
	channelHandler *handlers.ChannelHandler
	wsHandler      gin.HandlerFunc
}

func NewRouter(cfg *config.Config, st *store.Store, dir *directory.Service, hub *relay.Hub) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
	}))

	upgrader := relay.NewUpgrader(cfg.CORS.AllowedOrigins)

	return &Router{
		engine:         engine,
		channelHandler: handlers.NewChannelHandler(dir),
		wsHandler:      relay.ServeWS(hub, st, upgrader),
	}
}

// SetupRoutes configures all the routes for the application.
func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api")
	r.channelHandler.RegisterRoutes(api)

	r.engine.GET("/ws", r.wsHandler)
}

// GetEngine exposes the underlying gin engine to the HTTP server.
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
