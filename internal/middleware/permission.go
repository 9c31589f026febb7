package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/pkg/response"
)

// PermissionChecker answers capability questions for a user.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, perm string) (bool, error)
}

// RequirePermission aborts with 401 for anonymous requests and 403 when the
// user lacks perm. It must run after Auth or OptionalAuth.
func RequirePermission(checker PermissionChecker, perm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CurrentUserID(c)
		if userID == "" {
			response.Unauthorized(c)
			return
		}
		ok, err := checker.HasPermission(c.Request.Context(), userID, perm)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		if !ok {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}
