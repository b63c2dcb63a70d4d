package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/learnframe/learnframe-backend/internal/middleware"
	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
	"github.com/learnframe/learnframe-backend/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	adminService *service.AdminService
	ledger       QuizLedger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	authService *service.AuthService,
	adminService *service.AdminService,
	ledger QuizLedger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		adminService: adminService,
		ledger:       ledger,
	}
}

// WalletChallenge godoc
// POST /api/v1/auth/wallet/challenge
// Returns the message the wallet must personal_sign to log in.
func (h *AuthHandler) WalletChallenge(c *gin.Context) {
	var req model.WalletChallengeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	wallet, err := model.ParseWallet(req.Address)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidWallet)
		return
	}

	msg, err := h.authService.WalletChallenge(c.Request.Context(), wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"wallet":             wallet.Hex(),
		"message":            msg,
		"expires_in_seconds": int(service.WalletChallengeTTL.Seconds()),
	})
}

// WalletLogin godoc
// POST /api/v1/auth/wallet/login
// Verifies the signed challenge and issues a wallet JWT. A newer login
// invalidates the previous token.
func (h *AuthHandler) WalletLogin(c *gin.Context) {
	var req model.WalletLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	wallet, err := model.ParseWallet(req.Address)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidWallet)
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidSignature)
		return
	}

	err = h.authService.VerifyWalletLogin(c.Request.Context(), wallet, sig)
	switch {
	case errors.Is(err, service.ErrNoChallenge):
		response.Fail(c, http.StatusUnauthorized, response.ErrNoChallenge)
		return
	case errors.Is(err, service.ErrInvalidSignature):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidSignature)
		return
	case err != nil:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateWalletToken(c.Request.Context(), wallet.Hex())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":  token,
		"wallet": wallet.Hex(),
	})
}

// WalletLogout godoc
// POST /api/v1/auth/wallet/logout
func (h *AuthHandler) WalletLogout(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), wallet.Hex()); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetWalletProfile godoc
// GET /api/v1/auth/wallet/me
// Returns the wallet and its cooldown.
func (h *AuthHandler) GetWalletProfile(c *gin.Context) {
	wallet, ok := middleware.GetWallet(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	cooldown, err := h.ledger.Cooldown(c.Request.Context(), wallet)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"wallet":   wallet.Hex(),
		"cooldown": cooldown,
	})
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.adminService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	permissions, err := h.adminService.GetPermissions(c.Request.Context(), admin.RoleID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"admin":       admin.Profile(),
		"permissions": permissions,
	})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns JWT with permissions.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, permissions, err := h.adminService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	token, err := h.authService.GenerateAdminToken(admin.ID, admin.RoleID, permissions)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":       token,
		"admin":       admin.Profile(),
		"permissions": permissions,
	})
}
