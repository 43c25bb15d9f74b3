package api

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/onebox-mail/onebox/internal/api/handlers"
	"github.com/onebox-mail/onebox/internal/config"
	"github.com/onebox-mail/onebox/internal/functions"
	"github.com/onebox-mail/onebox/internal/functions/ai"
	"github.com/onebox-mail/onebox/internal/search"
	"github.com/onebox-mail/onebox/internal/services"
)

// Deps carries the constructed services the router wires handlers to
type Deps struct {
	Config     *config.Config
	Accounts   *services.AccountService
	Supervisor *services.Supervisor
	Index      *search.Index
	Knowledge  *ai.KnowledgeBase
	Chat       *ai.Client
	Classifier functions.Classifier
	Logger     *slog.Logger
}

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(deps.Config.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Supervisor, deps.Logger)
	emailHandler := handlers.NewEmailHandler(deps.Index, deps.Logger)
	aiHandler := handlers.NewAIHandler(deps.Knowledge, deps.Chat, deps.Logger)
	devHandler := handlers.NewDevHandler(deps.Classifier, deps.Index, deps.Logger)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		accounts := api.Group("/accounts")
		{
			accounts.GET("", accountHandler.ListAccounts)
			accounts.POST("", accountHandler.CreateAccount)
			accounts.POST("/test", accountHandler.TestConnection) // must be before /:id routes
			accounts.GET("/:id", accountHandler.GetAccount)
			accounts.PUT("/:id", accountHandler.UpdateAccount)
			accounts.DELETE("/:id", accountHandler.DeleteAccount)
			accounts.PATCH("/:id/toggle", accountHandler.ToggleAccount)
		}

		emails := api.Group("/emails")
		{
			emails.GET("", emailHandler.SearchEmails)
			emails.GET("/count", emailHandler.CountEmails)
		}

		aiGroup := api.Group("/ai")
		{
			aiGroup.GET("/suggest", aiHandler.SuggestReply)
			aiGroup.POST("/train", aiHandler.Train)
			aiGroup.POST("/initialize", aiHandler.Initialize)
		}

		api.POST("/reply/suggest", aiHandler.DirectReply)

		dev := api.Group("/dev")
		{
			dev.POST("/mock-email", devHandler.MockEmail)
		}
	}

	return router
}
