package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/database"
	"github.com/learnframe/learnframe-backend/internal/handler"
	"github.com/learnframe/learnframe-backend/internal/logger"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/repository"
	"github.com/learnframe/learnframe-backend/internal/router"
	"github.com/learnframe/learnframe-backend/internal/service"
	"github.com/learnframe/learnframe-backend/internal/validator"
	"github.com/learnframe/learnframe-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Dur("quiz_duration", cfg.QuizDuration).
		Dur("cooldown", cfg.Cooldown).
		Msg("Starting LearnFrame Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Question Set ──────────────────────────────────────────────────
	questionSet, err := service.LoadQuestions(cfg.QuestionSetPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.QuestionSetPath).Msg("Failed to load question set")
	}

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	clk := clock.New()

	// ─── Initialize Repositories ───────────────────────────────────────
	adminRepo := repository.NewAdminRepository(pool)
	roleRepo := repository.NewRoleRepository(pool)
	sessionRepo := repository.NewQuizSessionRepository(pool)
	userRepo := repository.NewQuizUserRepository(pool)
	draftRepo := repository.NewDraftRepository(pool)
	leaderboardRepo := repository.NewLeaderboardRepository(pool)
	rewardRepo := repository.NewRewardRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	adminService := service.NewAdminService(adminRepo, roleRepo, authService)
	questionService := service.NewQuestionService(questionSet, cfg, rdb, log)
	ledgerService := service.NewLedgerService(sessionRepo, userRepo, draftRepo, questionService, rdb, clk, cfg, m, log)
	leaderboardService := service.NewLeaderboardService(leaderboardRepo, rewardRepo, rdb)

	quizCfg := quiz.Config{
		Questions:     questionSet,
		Duration:      cfg.QuizDuration,
		Cooldown:      cfg.Cooldown,
		RedirectDelay: cfg.RedirectDelay,
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:        handler.NewAuthHandler(authService, adminService, ledgerService),
		Quiz:        handler.NewQuizHandler(ledgerService, questionService),
		Leaderboard: handler.NewLeaderboardHandler(leaderboardService, log),
		Admin:       handler.NewAdminHandler(ledgerService, leaderboardService, questionService, log),
		WS:          handler.NewWSHandler(ledgerService, quizCfg, clk, m, log, cfg.AllowedOrigins),
		System:      handler.NewSystemHandler(rdb, log),
	}

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// The answer key must be in Redis before the first submission arrives.
	if err := questionService.WarmCache(ctx); err != nil {
		log.Warn().Err(err).Msg("Question cache prewarm failed")
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workers, workerCtx := errgroup.WithContext(workerCtx)

	resultWorker := worker.NewResultWorker(pool, rdb, leaderboardService, log)
	rewardWorker := worker.NewRewardWorker(pool, rdb, m, log)
	answerWorker := worker.NewAnswerWorker(pool, rdb, log)
	reconciler := worker.NewReconciler(pool, rdb, m, log)

	workers.Go(func() error { resultWorker.Start(workerCtx); return nil })
	workers.Go(func() error { rewardWorker.Start(workerCtx); return nil })
	workers.Go(func() error { answerWorker.Start(workerCtx); return nil })
	workers.Go(func() error { reconciler.Start(workerCtx); return nil })

	authLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	limiterDone := make(chan struct{})
	go authLimiter.Run(limiterDone)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, m, authLimiter)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests. Hijacked WebSocket connections
	// are not tracked by Shutdown and close with the process.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(limiterDone)

	// 2. Stop background workers; each flushes its buffer before returning.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker exited with error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
