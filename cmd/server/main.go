// @title Mail Sort API
// @version 1.0
// @description Backend API for flag-based inbox sorting
// @termsOfService http://swagger.io/terms/
// @contact.name API Support
// @contact.email support@example.com
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"context"
	"log"

	"mailsort-be/config"
	"mailsort-be/internal/database"
	"mailsort-be/internal/handlers"
	"mailsort-be/internal/middleware"
	"mailsort-be/internal/repository"
	"mailsort-be/internal/services"

	"github.com/gin-gonic/gin"

	_ "mailsort-be/docs"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to MongoDB
	mongodb, err := database.NewMongoDB(cfg.MongoDBURI, cfg.MongoDBDatabase)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongodb.Disconnect()

	// Initialize repositories
	userRepo := repository.NewUserRepository(mongodb.Database)
	flagRepo := repository.NewFlagRepository(mongodb.Database)
	labelRepo := repository.NewLabelRepository(mongodb.Database)
	sessionRepo := repository.NewSessionRepository(mongodb.Database)
	logRepo := repository.NewProcessingLogRepository(mongodb.Database)

	// Initialize services
	gmailService := services.NewGmailService(cfg)
	geminiService := services.NewGeminiService(cfg)
	runner := services.NewRunner(cfg, userRepo, flagRepo, sessionRepo, logRepo, labelRepo, gmailService, geminiService)
	dispatcher := services.NewDispatcher(runner, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Start(ctx)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(cfg, userRepo)
	flagsHandler := handlers.NewFlagsHandler(flagRepo)
	sortingHandler := handlers.NewSortingHandler(dispatcher, flagRepo, sessionRepo, logRepo, geminiService)

	// Initialize Gin
	r := gin.Default()

	// Apply CORS middleware
	r.Use(middleware.CORS(cfg))

	// Public routes
	public := r.Group("/api")
	{
		// Health check
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":   "ok",
				"message":  "Mail Sort API is running",
				"database": "MongoDB connected",
			})
		})

		// Auth routes
		auth := public.Group("/auth")
		{
			auth.POST("/signup", authHandler.Signup)
			auth.POST("/login", authHandler.Login)
			auth.POST("/google", authHandler.GoogleAuth)
			auth.POST("/refresh", authHandler.RefreshToken)
		}
	}

	// Protected routes
	protected := r.Group("/api")
	protected.Use(middleware.AuthMiddleware(cfg))
	{
		// Auth protected routes
		protected.POST("/auth/logout", authHandler.Logout)
		protected.GET("/auth/me", authHandler.GetMe)

		// Flag routes
		protected.POST("/flags", flagsHandler.SaveFlags)
		protected.GET("/flags", flagsHandler.GetFlags)
		protected.POST("/flags/clear", flagsHandler.ClearFlags)

		// Sorting routes
		protected.POST("/sorting/start", sortingHandler.Start)
		protected.POST("/sorting/revert", sortingHandler.Revert)
		protected.GET("/sorting/status", sortingHandler.Status)
		protected.GET("/sorting/history", sortingHandler.History)
		protected.GET("/sorting/sessions/:sessionId", sortingHandler.SessionDetails)

		// AI routes
		protected.POST("/sorting/ai/enhance-keywords", sortingHandler.EnhanceKeywords)
		protected.POST("/sorting/ai/suggest-flags", sortingHandler.SuggestFlags)
		protected.GET("/sorting/ai/status", sortingHandler.AIStatus)
	}

	// Swagger route
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Start server
	log.Printf("Server starting on port %s", cfg.Port)
	log.Printf("Connected to MongoDB: %s", cfg.MongoDBDatabase)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
