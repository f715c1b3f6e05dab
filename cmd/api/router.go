package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	limited := h.limiter.Middleware()

	api := r.Group("/api")
	{
		// Health check
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// OAuth connections. The Google callback issues the session token
		// every route below AuthMiddleware requires.
		api.GET("/auth/google/url", h.connectionHandler.GoogleAuthURL)
		api.GET("/auth/google/callback", h.connectionHandler.GoogleCallback)
		api.GET("/hubspot/callback", h.connectionHandler.HubSpotCallback)

		authed := api.Group("", h.auth)

		hubspot := authed.Group("/hubspot")
		{
			hubspot.GET("/auth-url", h.connectionHandler.HubSpotAuthURL)
			hubspot.GET("/ingest", limited, h.ingestHandler.IngestHubSpot)
		}

		fcm := authed.Group("/fcm")
		{
			fcm.POST("/register", h.connectionHandler.RegisterFCMToken)
			fcm.DELETE("/:token", h.connectionHandler.UnregisterFCMToken)
		}

		// Ingestion and search
		gmail := authed.Group("/gmail")
		{
			gmail.GET("/ingest", limited, h.ingestHandler.IngestGmail)
			gmail.GET("/thread/:id", h.ingestHandler.GetThread)
			gmail.GET("/search", limited, h.ingestHandler.SearchThreads)
		}

		calendar := authed.Group("/calendar")
		{
			calendar.GET("/ingest", limited, h.ingestHandler.IngestCalendar)
			calendar.GET("/search", limited, h.ingestHandler.SearchEvents)
		}

		authed.GET("/search", limited, h.ingestHandler.SearchContacts)
		authed.POST("/ingest/all", limited, h.ingestHandler.IngestAll)

		// Assistant
		authed.POST("/chat", limited, h.chatHandler.Chat)
		authed.GET("/chat/history", h.chatHandler.History)
		authed.POST("/tools/call", limited, h.actionHandler.CallTool)

		tasks := authed.Group("/tasks")
		{
			tasks.GET("", h.taskHandler.GetTasks)
			tasks.POST("", h.taskHandler.CreateTask)
			tasks.POST("/:id/done", h.taskHandler.MarkDone)
		}

		instructions := authed.Group("/instructions")
		{
			instructions.GET("", h.instructionHandler.ListInstructions)
			instructions.POST("", h.instructionHandler.StoreInstruction)
		}

		// Operator trigger for one instruction pass
		authed.GET("/simulate/instruction-check", limited, h.instructionHandler.RunCheck)

		// Settings routes - Runtime configuration
		settings := authed.Group("/settings")
		{
			settings.GET("/ollama", h.settingsHandler.GetOllamaSettings)
			settings.PUT("/ollama", h.settingsHandler.UpdateOllamaSettings)
			settings.POST("/ollama/test", h.settingsHandler.TestOllamaConnection)
		}
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
