package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func (app *application) routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// simple logger middleware that uses zap
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		app.Logger.Sugar().Infow("http", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	})

	// CORS Middleware
	origins := app.Config.GetCORSOrigins()
	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		for _, trusted := range origins {
			if strings.EqualFold(origin, trusted) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
				c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
				c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
				break
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	v1 := r.Group("/api/v1")
	v1.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := v1.Group("/")
	protected.Use(app.AuthMiddleware())
	{
		// interview routes
		protected.POST("/interviews", app.Handler.CreateInterview)
		protected.GET("/interviews", app.Handler.ListInterviews)
		protected.GET("/interviews/stats", app.Handler.GetInterviewStats)
		protected.GET("/interviews/:id", app.Handler.GetInterview)
		protected.POST("/interviews/:id/confirm", app.Handler.ConfirmSlot)
		protected.POST("/interviews/:id/feedback", app.Handler.SubmitFeedback)
		protected.POST("/interviews/:id/reschedule", app.Handler.RescheduleInterview)

		// workflow instance routes
		protected.GET("/workflows/:id", app.Handler.GetWorkflowInstance)
		protected.POST("/workflows/:id/cancel", app.Handler.CancelWorkflowInstance)
	}

	return r
}
