package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/handler"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
)

// questionsMaxAge is how long clients may cache the public question set.
const questionsMaxAge = 5 * time.Minute

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Quiz        *handler.QuizHandler
	Leaderboard *handler.LeaderboardHandler
	Admin       *handler.AdminHandler
	WS          *handler.WSHandler
	System      *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
	m *metrics.Metrics,
	authLimiter *middleware.RateLimiter,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	router.Use(m.Middleware())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli(middleware.SkipPaths("/metrics", "/health")))

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", m.Handler())

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1")
	{
		publicAPI.GET("/quiz/questions", middleware.CacheControl(questionsMaxAge), handlers.Quiz.GetQuestions)
		publicAPI.GET("/leaderboard", handlers.Leaderboard.List)
		publicAPI.GET("/leaderboard/stream", handlers.Leaderboard.Stream)
	}

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/wallet/challenge", handlers.Auth.WalletChallenge)
		auth.POST("/wallet/login", handlers.Auth.WalletLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		walletOnly := []gin.HandlerFunc{
			middleware.RequireWalletJWT(authService),
			middleware.CheckSingleDeviceSession(authService),
		}
		auth.POST("/wallet/logout", append(walletOnly, handlers.Auth.WalletLogout)...)
		auth.GET("/wallet/me", append(walletOnly, handlers.Auth.GetWalletProfile)...)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Wallet Group (JWT + Single Device) ─────────────────────────
	walletAPI := router.Group("/api/v1")
	walletAPI.Use(
		middleware.RequireWalletJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
		middleware.NoStore(),
	)
	{
		walletAPI.GET("/quiz/cooldown", handlers.Quiz.GetCooldown)
		walletAPI.GET("/quiz/state", handlers.Quiz.GetState)
		walletAPI.POST("/quiz/start", handlers.Quiz.StartQuiz)
		walletAPI.PUT("/quiz/draft", handlers.Quiz.SaveDraft)
		walletAPI.POST("/quiz/submit", handlers.Quiz.SubmitQuiz)
		walletAPI.GET("/quiz/history", handlers.Quiz.GetHistory)
		walletAPI.GET("/leaderboard/me", handlers.Leaderboard.GetMine)
		walletAPI.GET("/rewards/me", handlers.Leaderboard.GetMyRewards)
	}

	// ─── 3. WebSocket Group (Wallet WS Auth) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWalletWSAuth(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		ws.GET("/quiz/stream", handlers.WS.QuizStream)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService), middleware.NoStore())
	{
		adminAPI.GET("/wallets/:address/state",
			middleware.RequirePermission(model.PermissionSessionsRead),
			handlers.Admin.GetWalletState,
		)
		adminAPI.GET("/wallets/:address/sessions",
			middleware.RequirePermission(model.PermissionSessionsRead),
			handlers.Admin.GetWalletSessions,
		)
		adminAPI.POST("/wallets/:address/reset-session",
			middleware.RequirePermission(model.PermissionSessionsReset),
			handlers.Admin.ResetWalletSession,
		)
		adminAPI.GET("/wallets/:address/rewards",
			middleware.RequirePermission(model.PermissionRewardsRead),
			handlers.Admin.GetWalletRewards,
		)
		adminAPI.GET("/questions",
			middleware.RequirePermission(model.PermissionQuestionsRead),
			handlers.Admin.GetQuestionSet,
		)

		// System monitoring
		adminAPI.GET("/system/stats",
			middleware.RequireAnyPermission(model.PermissionSessionsRead, model.PermissionSessionsReset),
			handlers.System.GetStats,
		)
		adminAPI.GET("/system/stream",
			middleware.RequireAnyPermission(model.PermissionSessionsRead, model.PermissionSessionsReset),
			handlers.System.StreamStats,
		)
	}

	return router
}
