package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/geth/common"
	"github.com/rs/zerolog"

	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/response"
)

// QuestionSetSource exposes the full question set, answers included.
type QuestionSetSource interface {
	Set() quiz.QuestionSet
}

// AdminHandler handles operator endpoints for sessions, rewards and questions.
type AdminHandler struct {
	ledger      QuizLedger
	leaderboard LeaderboardReader
	questions   QuestionSetSource
	log         zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger QuizLedger, leaderboard LeaderboardReader, questions QuestionSetSource, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		ledger:      ledger,
		leaderboard: leaderboard,
		questions:   questions,
		log:         log.With().Str("component", "admin_handler").Logger(),
	}
}

func walletParam(c *gin.Context) (common.Address, bool) {
	wallet, err := model.ParseWallet(c.Param("address"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidWallet)
		return common.Address{}, false
	}
	return wallet, true
}

// GetWalletState godoc
// GET /api/v1/admin/wallets/:address/state
func (h *AdminHandler) GetWalletState(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}

	state, err := h.ledger.State(c.Request.Context(), wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// GetWalletSessions godoc
// GET /api/v1/admin/wallets/:address/sessions?limit=
func (h *AdminHandler) GetWalletSessions(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	sessions, err := h.ledger.History(c.Request.Context(), wallet, limit)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// ResetWalletSession godoc
// POST /api/v1/admin/wallets/:address/reset-session
// Abandons the running session and lifts the cooldown.
func (h *AdminHandler) ResetWalletSession(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
		return
	}

	abandoned, err := h.ledger.ResetSession(c.Request.Context(), wallet)
	if err != nil {
		h.log.Error().Err(err).Str("wallet", wallet.Hex()).Msg("Reset failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	var adminID int
	if claims := middleware.GetClaims(c); claims != nil {
		adminID = claims.UserID
	}
	h.log.Info().Int("admin_id", adminID).Str("wallet", wallet.Hex()).Msg("Wallet session reset by admin")

	response.Success(c, http.StatusOK, gin.H{
		"wallet":    wallet.Hex(),
		"abandoned": abandoned,
	})
}

// GetWalletRewards godoc
// GET /api/v1/admin/wallets/:address/rewards?limit=
func (h *AdminHandler) GetWalletRewards(c *gin.Context) {
	wallet, ok := walletParam(c)
	if !ok {
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

// GetQuestionSet godoc
// GET /api/v1/admin/questions
// Returns the question set with the correct answers.
func (h *AdminHandler) GetQuestionSet(c *gin.Context) {
	set := h.questions.Set()
	questions := make([]quiz.Question, 0, quiz.QuestionCount)
	for i := 0; i < quiz.QuestionCount; i++ {
		questions = append(questions, set.Question(i))
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
