package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-grievance-api/internal/models"
	appErrors "github.com/noah-isme/campus-grievance-api/pkg/errors"
	"github.com/noah-isme/campus-grievance-api/pkg/response"
)

// RequireRoles gates a route to the given roles. Route-level gating only
// handles the coarse role check; ownership and assignment rules are enforced
// by the access policy inside the grievance service.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
