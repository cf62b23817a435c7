package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Test    *handler.TestHandler
	Result  *handler.ResultHandler
	Proctor *handler.ProctorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tokens middleware.TokenValidator,
	handlers *Handlers,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := middleware.RequireAuth(tokens)
	authLimiter := middleware.NewRateLimiter(rdb, "auth", cfg.RateLimitPerMinute, log)
	submitLimiter := middleware.NewRateLimiter(rdb, "submit", cfg.RateLimitPerMinute, log)
	compress := middleware.Brotli(middleware.DefaultBrotliMinLength)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", requireAuth, handlers.Auth.Me)
	}

	// ─── 2. Taker Group (JWT) ──────────────────────────────────────────
	api := router.Group("/api/v1")
	api.Use(requireAuth)
	{
		api.GET("/tests", handlers.Test.ListTests)
		api.GET("/tests/:test_id", handlers.Test.GetTest)
		api.POST("/tests/:test_id/submit", submitLimiter.Middleware(), handlers.Test.SubmitTest)

		results := api.Group("/results")
		results.Use(middleware.NoStore())
		{
			results.GET("", handlers.Result.ListMyResults)
			results.GET("/:submission_id", handlers.Result.GetResult)
		}
	}

	// ─── 3. WebSocket Group (token via query) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(requireAuth)
	{
		ws.GET("/tests/:test_id/proctor", handlers.Proctor.TakerStream)
	}

	// ─── 4. Admin Group (JWT + Role) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireAuth, middleware.RequireRole(model.RoleAdmin))
	{
		adminAPI.POST("/tests", handlers.Test.CreateTest)
		adminAPI.GET("/tests/:test_id/submissions", compress, middleware.NoStore(), handlers.Result.ListTestSubmissions)
		adminAPI.GET("/tests/:test_id/proctor-events", compress, handlers.Proctor.ListEvents)

		// SSE streams must not be buffered by the compression middleware.
		adminAPI.GET("/tests/:test_id/proctor/live", handlers.Proctor.LiveFeed)
	}

	return router
}
