package http

import (
	"github.com/gin-gonic/gin"

	"gopherai-search/internal/bootstrap"
	"gopherai-search/internal/transport/http/handler"
	"gopherai-search/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.AccessLog(app.Logger.Named("http")), gin.Recovery())

	checks := make(map[string]handler.HealthCheck)
	for name, check := range app.HealthChecks() {
		checks[name] = check
	}
	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, checks)
	router.GET("/healthz", healthHandler.Check)

	authHandler := handler.NewAuthHandler(app.AuthService)
	conversationHandler := handler.NewConversationHandler(app.ChatService)
	uploadHandler := handler.NewUploadHandler(app.UploadService)
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/guest", authHandler.Guest)
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)

	convGroup := v1.Group("/conversations")
	convGroup.Use(requireAuth)
	convGroup.POST("", conversationHandler.Create)
	convGroup.GET("", conversationHandler.List)
	convGroup.DELETE("/:id", conversationHandler.Delete)
	convGroup.GET("/:id/turns", conversationHandler.Turns)
	convGroup.POST("/:id/turns", conversationHandler.SendTurn)
	convGroup.POST("/:id/voice", conversationHandler.Voice)
	convGroup.POST("/:id/uploads", uploadHandler.Upload)

	return router
}
