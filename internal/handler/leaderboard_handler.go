package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/response"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second
	streamPageSize    = 50
)

// LeaderboardReader reads standings and rewards.
type LeaderboardReader interface {
	List(ctx context.Context, page, perPage int) ([]model.LeaderboardEntry, *response.Pagination, error)
	GetByWallet(ctx context.Context, wallet string) (*model.LeaderboardEntry, error)
	Rewards(ctx context.Context, wallet string, limit int) ([]model.RewardEvent, error)
	Subscribe(ctx context.Context) *redis.PubSub
}

type LeaderboardHandler struct {
	leaderboard LeaderboardReader
	log         zerolog.Logger
}

func NewLeaderboardHandler(leaderboard LeaderboardReader, log zerolog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboard: leaderboard,
		log:         log.With().Str("component", "leaderboard_handler").Logger(),
	}
}

// List godoc
// GET /api/v1/leaderboard?page=&per_page=
func (h *LeaderboardHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

	entries, pagination, err := h.leaderboard.List(c.Request.Context(), page, perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list leaderboard")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, entries, pagination)
}

// GetMine godoc
// GET /api/v1/leaderboard/me
func (h *LeaderboardHandler) GetMine(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	entry, err := h.leaderboard.GetByWallet(c.Request.Context(), wallet.Hex())
	if errors.Is(err, pgx.ErrNoRows) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, entry)
}

// GetMyRewards godoc
// GET /api/v1/rewards/me?limit=
func (h *LeaderboardHandler) GetMyRewards(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rewards, err := h.leaderboard.Rewards(c.Request.Context(), wallet.Hex(), limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rewards": rewards})
}

// Stream godoc
// GET /api/v1/leaderboard/stream
// Server-sent events: a snapshot, then every published update, with a
// periodic refresh once results have arrived.
func (h *LeaderboardHandler) Stream(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendStandings(c, reqCtx, "snapshot")

	pubsub := h.leaderboard.Subscribe(reqCtx)
	defer pubsub.Close()
	ch := pubsub.Channel()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	dirty := false
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Debug().Msg("Client attached to leaderboard stream")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Debug().Msg("Client detached from leaderboard stream")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(c, []byte(msg.Payload))
			dirty = true

		case <-refreshTicker.C:
			if !dirty {
				continue
			}
			dirty = false
			h.sendStandings(c, reqCtx, "refresh")

		case <-keepAliveTicker.C:
			writeSSE(c, pingPayload)
		}
	}
}

// sendStandings writes the first page of the leaderboard as one event.
func (h *LeaderboardHandler) sendStandings(c *gin.Context, parentCtx context.Context, kind string) {
	ctx, cancel := context.WithTimeout(parentCtx, refreshTimeout)
	defer cancel()

	entries, _, err := h.leaderboard.List(ctx, 1, streamPageSize)
	if err != nil {
		h.log.Warn().Err(err).Str("kind", kind).Msg("Failed to load standings")
		return
	}

	c.SSEvent("message", map[string]interface{}{
		"type":    kind,
		"entries": entries,
	})
	c.Writer.Flush()
}

func writeSSE(c *gin.Context, payload []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(payload)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
