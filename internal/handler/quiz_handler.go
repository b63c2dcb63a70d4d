package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/geth/common"

	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
	"github.com/learnframe/learnframe-backend/internal/validator"
)

// QuizLedger is the ledger surface used by the quiz endpoints and streams.
type QuizLedger interface {
	quiz.Ledger
	SaveDraft(ctx context.Context, user common.Address, index int, answer string) error
	Cooldown(ctx context.Context, user common.Address) (*model.CooldownView, error)
	State(ctx context.Context, user common.Address) (*model.QuizStateView, error)
	History(ctx context.Context, user common.Address, limit int) ([]model.QuizSession, error)
	ResetSession(ctx context.Context, user common.Address) (int64, error)
}

// QuestionProvider serves the player-facing question set.
type QuestionProvider interface {
	GetPayload(ctx context.Context) (*service.QuestionPayload, error)
}

// QuizHandler handles wallet-facing quiz endpoints.
type QuizHandler struct {
	ledger    QuizLedger
	questions QuestionProvider
}

// NewQuizHandler creates a new QuizHandler.
func NewQuizHandler(ledger QuizLedger, questions QuestionProvider) *QuizHandler {
	return &QuizHandler{ledger: ledger, questions: questions}
}

// GetQuestions godoc
// GET /api/v1/quiz/questions
// Returns the question set without correct answers.
func (h *QuizHandler) GetQuestions(c *gin.Context) {
	payload, err := h.questions.GetPayload(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, payload)
}

// GetCooldown godoc
// GET /api/v1/quiz/cooldown
func (h *QuizHandler) GetCooldown(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	view, err := h.ledger.Cooldown(c.Request.Context(), wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// GetState godoc
// GET /api/v1/quiz/state
// Returns the cooldown and the latest session.
func (h *QuizHandler) GetState(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	state, err := h.ledger.State(c.Request.Context(), wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// StartQuiz godoc
// POST /api/v1/quiz/start
// Opens a ledger session. Fails with COOLDOWN_ACTIVE or SESSION_CONFLICT.
func (h *QuizHandler) StartQuiz(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	ctx := c.Request.Context()
	if err := h.ledger.StartSession(ctx, wallet); err != nil {
		failQuiz(c, err)
		return
	}

	state, err := h.ledger.State(ctx, wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusCreated, state)
}

// SubmitQuiz godoc
// POST /api/v1/quiz/submit
// Grades exactly ten positional answers.
func (h *QuizHandler) SubmitQuiz(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SubmitAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var answers quiz.Answers
	copy(answers[:], req.Answers)

	res, err := h.ledger.SubmitAnswers(c.Request.Context(), wallet, answers)
	if err != nil {
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// SaveDraft godoc
// PUT /api/v1/quiz/draft
// Records one selection of the running session.
func (h *QuizHandler) SaveDraft(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.SaveDraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.ledger.SaveDraft(c.Request.Context(), wallet, *req.Index, req.Answer); err != nil {
		failQuiz(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// GetHistory godoc
// GET /api/v1/quiz/history?limit=
func (h *QuizHandler) GetHistory(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
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
