package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnframe/learnframe-backend/internal/quiz"
	"github.com/learnframe/learnframe-backend/internal/response"
)

// quizErrorCode maps a quiz protocol error to its HTTP status and code.
func quizErrorCode(err error) (int, response.ErrCode) {
	switch {
	case errors.Is(err, quiz.ErrCooldownActive):
		return http.StatusTooManyRequests, response.ErrCooldownActive
	case errors.Is(err, quiz.ErrSessionConflict):
		return http.StatusConflict, response.ErrSessionConflict
	case errors.Is(err, quiz.ErrInsufficientFunds):
		return http.StatusPaymentRequired, response.ErrInsufficientFunds
	case errors.Is(err, quiz.ErrSessionExpired):
		return http.StatusGone, response.ErrSessionExpired
	case errors.Is(err, quiz.ErrSubmissionRejected):
		return http.StatusUnprocessableEntity, response.ErrSubmissionRejected
	case errors.Is(err, quiz.ErrNoActiveSession):
		return http.StatusNotFound, response.ErrNoActiveSession
	case errors.Is(err, quiz.ErrInvalidAnswers):
		return http.StatusBadRequest, response.ErrInvalidAnswers
	case errors.Is(err, quiz.ErrSubmissionInFlight), errors.Is(err, quiz.ErrInvalidState):
		return http.StatusConflict, response.ErrSessionConflict
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// failQuiz writes err with the player-facing status text. Internal errors
// keep the generic message so details are not leaked.
func failQuiz(c *gin.Context, err error) {
	status, code := quizErrorCode(err)
	if code == response.ErrInternal {
		response.Fail(c, status, code)
		return
	}
	response.FailWithMessage(c, status, code, quiz.StatusText(err))
}
