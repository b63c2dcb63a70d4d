package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/learnframe/learnframe-backend/internal/config"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/repository"
	"github.com/learnframe/learnframe-backend/internal/response"
)

// LeaderboardService handles leaderboard and reward queries.
type LeaderboardService struct {
	leaderboardRepo *repository.LeaderboardRepository
	rewardRepo      *repository.RewardRepository
	rdb             *redis.Client
}

// NewLeaderboardService creates a new LeaderboardService.
func NewLeaderboardService(
	leaderboardRepo *repository.LeaderboardRepository,
	rewardRepo *repository.RewardRepository,
	rdb *redis.Client,
) *LeaderboardService {
	return &LeaderboardService{
		leaderboardRepo: leaderboardRepo,
		rewardRepo:      rewardRepo,
		rdb:             rdb,
	}
}

// List retrieves one page of the ranked leaderboard.
func (s *LeaderboardService) List(ctx context.Context, page, perPage int) ([]model.LeaderboardEntry, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	entries, total, err := s.leaderboardRepo.List(ctx, page, perPage)
	if err != nil {
		return nil, nil, fmt.Errorf("list leaderboard: %w", err)
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}

	return entries, response.NewPagination(page, perPage, total), nil
}

// GetByWallet retrieves the wallet's ranked entry.
func (s *LeaderboardService) GetByWallet(ctx context.Context, wallet string) (*model.LeaderboardEntry, error) {
	return s.leaderboardRepo.GetByWallet(ctx, wallet)
}

// Rewards retrieves the wallet's recent reward events.
func (s *LeaderboardService) Rewards(ctx context.Context, wallet string, limit int) ([]model.RewardEvent, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	events, err := s.rewardRepo.ListByWallet(ctx, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	if events == nil {
		events = []model.RewardEvent{}
	}
	return events, nil
}

// Publish announces changed wallets on the leaderboard channel.
func (s *LeaderboardService) Publish(ctx context.Context, update model.LeaderboardUpdate) error {
	if update.Type == "" {
		update.Type = model.LeaderboardUpdateType
	}
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, config.CacheKey.LeaderboardChannel(), data).Err()
}

// Subscribe opens a PubSub on the leaderboard channel. The caller closes it.
func (s *LeaderboardService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.LeaderboardChannel())
}
