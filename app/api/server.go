package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// Middleware
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	// CORS middleware for API endpoints
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Routes
	setupRoutes(r, handler, apiAccessKey)

	return r
}

// setupRoutes configures all the application routes
func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	// Health and status endpoints
	r.GET("/health", handler.GetHealth)

	// API endpoints (conditionally enabled with authentication)
	if apiAccessKey != "" {
		api := r.Group("/api")
		api.Use(authMiddleware(apiAccessKey))
		{
			api.GET("/targets", handler.ListTargets)
			api.POST("/targets", handler.CreateTarget)
			api.GET("/targets/:id", handler.GetTarget)
			api.PATCH("/targets/:id", handler.UpdateTarget)
			api.DELETE("/targets/:id", handler.DeleteTarget)
			api.POST("/targets/:id/toggle", handler.ToggleTarget)

			// Run control
			api.POST("/runs", handler.TriggerRun)
			api.POST("/runs/halt", handler.HaltRun)
			api.GET("/runs", handler.ListRuns)
			api.GET("/runs/latest", handler.LatestRun)

			api.GET("/listings/feed", handler.ListingFeed)
			api.GET("/stats", handler.GetStats)
		}
		slog.Info("API endpoints enabled with authentication")
	} else {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
	}

	// Root endpoint with basic information
	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"health": "/health",
		}

		// Add API endpoints if authentication is enabled
		if apiAccessKey != "" {
			endpoints["targets"] = "/api/targets (requires X-API-Key header)"
			endpoints["runs"] = "/api/runs (requires X-API-Key header)"
			endpoints["stats"] = "/api/stats (requires X-API-Key header)"
			endpoints["listings"] = "/api/listings/feed (RSS, requires X-API-Key header)"
		}

		c.JSON(http.StatusOK, gin.H{
			"service":     "Opp Comb",
			"version":     handler.version,
			"description": "Scheduled opportunity harvester: fetch, extract, deduplicate, persist",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
}

// authMiddleware creates authentication middleware for API endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get API key from X-API-Key header
		providedKey := c.GetHeader("X-API-Key")

		// Also check Authorization header with Bearer prefix
		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		// Check if API key is provided and matches
		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: apiError{
				Code:    "unauthorized",
				Message: "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			}})
			return
		}

		if providedKey != apiAccessKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: apiError{
				Code:    "unauthorized",
				Message: "The provided API key is not valid",
			}})
			return
		}

		// Continue to next middleware/handler
		c.Next()
	}
}
