package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/investflow/config"
	"github.com/yourusername/investflow/handlers"
	"github.com/yourusername/investflow/middleware"
	"github.com/yourusername/investflow/utils"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Collaborators
	mailer := utils.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom, logger)
	gateway := utils.NewCollectionClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, logger)

	// Setup router
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// API routes
	api := router.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"success": true,
				"data": gin.H{
					"status":  "healthy",
					"service": "investflow-api",
				},
			})
		})

		// Account lifecycle endpoints
		authHandler := handlers.NewAuthHandler(db, cfg, mailer, logger)
		auth := api.Group("/auth")
		auth.POST("/register", authHandler.Register)
		auth.GET("/verify-email", authHandler.VerifyEmail)
		auth.POST("/login", authHandler.Login)
		auth.POST("/resend-verification", authHandler.ResendVerification)

		// Payment endpoints
		paymentHandler := handlers.NewPaymentHandler(db, gateway, logger)
		payment := api.Group("/payment")
		payment.POST("/initiate", paymentHandler.Initiate)
		payment.GET("/status/:transactionId", paymentHandler.CheckStatus)

		// User endpoints
		userHandler := handlers.NewUserHandler(db)
		user := api.Group("/user")
		user.GET("/investments/:phone", userHandler.GetInvestments)
		user.GET("/me", middleware.JwtAuthMiddleware(cfg), userHandler.Me)
	}

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	logger.Info("Starting InvestFlow API server", zap.String("port", port))
	if err := router.Run(":" + port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
