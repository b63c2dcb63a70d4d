package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnframe/learnframe-backend/internal/model"
	"github.com/learnframe/learnframe-backend/internal/response"
	"github.com/learnframe/learnframe-backend/internal/service"
)

// RequirePermission admits operators whose token grants permission.
func RequirePermission(permission model.Permission) gin.HandlerFunc {
	return RequireAnyPermission(permission)
}

// RequireAnyPermission admits operators holding at least one of permissions.
// Must run after RequireAdminJWT.
func RequireAnyPermission(permissions ...model.Permission) gin.HandlerFunc {
	wanted := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		wanted[string(p)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if claims.TokenType != service.TokenTypeAdmin {
			response.AbortFail(c, http.StatusForbidden, response.ErrAdminAccessOnly)
			return
		}

		for _, granted := range claims.Permissions {
			if _, ok := wanted[granted]; ok {
				c.Next()
				return
			}
		}
		response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
	}
}
