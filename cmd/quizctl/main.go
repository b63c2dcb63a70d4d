package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/learnframe/learnframe-backend/internal/clock"
	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/database"
	"github.com/learnframe/learnframe-backend/internal/logger"
	"github.com/learnframe/learnframe-backend/internal/metrics"
	"github.com/learnframe/learnframe-backend/internal/repository"
	"github.com/learnframe/learnframe-backend/internal/service"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	c := &cobra.Command{
		Use:           "quizctl",
		Short:         "Operator tooling for the LearnFrame quiz",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	c.AddCommand(
		resetCommand(),
		cooldownCommand(),
		historyCommand(),
		questionsCommand(),
	)
	return c
}

// env holds the connections a command needs. Close releases them.
type env struct {
	cfg       *config.Config
	log       zerolog.Logger
	pool      *pgxpool.Pool
	rdb       *redis.Client
	questions *service.QuestionService
	ledger    *service.LedgerService
}

func openEnv(ctx context.Context) (*env, error) {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	set, err := service.LoadQuestions(cfg.QuestionSetPath)
	if err != nil {
		return nil, err
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	questions := service.NewQuestionService(set, cfg, rdb, log)
	ledger := service.NewLedgerService(
		repository.NewQuizSessionRepository(pool),
		repository.NewQuizUserRepository(pool),
		repository.NewDraftRepository(pool),
		questions,
		rdb,
		clock.New(),
		cfg,
		metrics.New(prometheus.NewRegistry()),
		log,
	)

	return &env{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		rdb:       rdb,
		questions: questions,
		ledger:    ledger,
	}, nil
}

func (e *env) Close() {
	_ = e.rdb.Close()
	e.pool.Close()
}

func printJSON(c *cobra.Command, v any) error {
	enc := json.NewEncoder(c.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
