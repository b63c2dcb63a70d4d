package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
)

// SessionValidator checks that a wallet token is its latest login.
type SessionValidator interface {
	ValidateWalletSession(ctx context.Context, wallet, jti string) error
}

// CheckSingleDeviceSession validates the JWT's JTI against the wallet's latest
// login in Redis. A token superseded by a newer login is rejected.
func CheckSingleDeviceSession(sessions SessionValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		// Only enforce for wallet tokens.
		if claims.TokenType != service.TokenTypeWallet {
			c.Next()
			return
		}

		if err := sessions.ValidateWalletSession(c.Request.Context(), claims.Wallet, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
