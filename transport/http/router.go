package http

import (
	"github.com/gin-gonic/gin"
	"github.com/layer-3/ethauth/internal/eth"
	"github.com/layer-3/ethauth/service"
	"github.com/rs/zerolog"
)

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, typedData *eth.EIP712Hasher, logger zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	handlers := NewAuthHandlers(authService, typedData)

	router.GET("/healthz", handlers.Health)

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.GET("/receipt", ReceiptMiddleware(authService), handlers.Receipt)
	}

	return router
}
