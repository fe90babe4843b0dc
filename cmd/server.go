package cmd

import (
	"log"
	"os"
	"strconv"

	"audioembed/config"
	"audioembed/handlers"
	"audioembed/middleware"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serverPort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the embedding web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newDefaultApp()
		if err != nil {
			return err
		}
		defer app.Close()
		return StartWebServer(app, serverPort)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&serverPort, "port", 5000, "Port for the web server")
}

// StartWebServer starts the web server
func StartWebServer(app *App, port int) error {
	// Set production mode if not specified
	if mode := os.Getenv("GIN_MODE"); mode != "" {
		gin.SetMode(mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := NewRouter(app)

	portStr := strconv.Itoa(port)
	if envPort := os.Getenv("SERVER_PORT"); envPort != "" {
		portStr = envPort
	}

	log.Printf("audioembed web server starting on port %s (model calls: %s)", portStr, app.Runner.Discipline())
	return r.Run(":" + portStr)
}

// NewRouter builds the engine with middleware and routes
func NewRouter(app *App) *gin.Engine {
	predictHandler := handlers.NewPredictHandler(app.Pipeline, config.GetMaxFetchBytes())
	requestHandler := handlers.NewRequestHandler(app.Tracker, app.Hub)
	healthHandler := handlers.NewHealthHandler(app.Pipeline, app.Runner, app.Hub)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS())
	r.Use(middleware.Logging())

	setupRoutes(r, predictHandler, requestHandler, healthHandler)
	return r
}

// setupRoutes configures all the HTTP routes
func setupRoutes(r *gin.Engine, predictHandler *handlers.PredictHandler, requestHandler *handlers.RequestHandler, healthHandler *handlers.HealthHandler) {
	r.GET("/health", healthHandler.HealthCheck)

	r.POST("/model/predict", predictHandler.Predict)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", healthHandler.APIStatus)

		requestsGroup := apiGroup.Group("/requests")
		{
			requestsGroup.GET("", requestHandler.GetAllRequests)
			requestsGroup.GET("/:requestId", requestHandler.GetRequest)
		}

		// WebSocket endpoints for real-time progress
		wsGroup := apiGroup.Group("/ws")
		{
			wsGroup.GET("/requests/:requestId", requestHandler.HandleWebSocketConnection)
			wsGroup.GET("/requests", requestHandler.HandleWebSocketAllConnection)
		}
	}
}
