package http

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/drops/internal/metrics"
	"github.com/sujalbistaa/drops/internal/ws"
)

const (
	rateLimitRPS   = 1.0 / 3.0 // 1 request every 3 seconds
	rateLimitBurst = 3
)

// Options are the router settings taken from configuration.
type Options struct {
	CORSOrigin string
	AdminToken string
}

// SetupRoutes configures all application routes and middleware. Background
// sweepers stop with ctx.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, opts Options) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", identityHeader, "X-Admin-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: corsOrigin != "*",
	}))

	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go limiter.Run(ctx, 10*time.Minute)

	api := router.Group("/api")
	{
		api.GET("/feed", env.GetFeed)
		api.POST("/drops", RateLimitMiddleware(limiter), env.CreateDrop)
		api.GET("/drops/:id", env.GetDrop)
		api.POST("/drops/:id/vote", env.VoteOnDrop)
		api.POST("/drops/:id/peek", env.PeekDrop)
		api.POST("/drops/:id/peek/:index", env.PeekWord)
		api.POST("/drops/:id/poll", env.VoteOnPoll)

		api.POST("/presence/:subject", env.Heartbeat)
		api.GET("/presence/:subject", env.GetPresence)

		api.GET("/me/balance", env.GetBalance)
		api.GET("/me/history", env.GetHistory)
	}

	admin := router.Group("/api/admin", AdminAuthMiddleware(opts.AdminToken))
	{
		admin.POST("/drops/:id/reject", env.RejectDrop)
		admin.DELETE("/drops/:id", env.DeleteDrop)
	}

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(env.Hub, c.Writer, c.Request)
	})
}
