package role

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/upgrade/", authMW, h.upgrade)
}

// upgrade GET /upgrade/  [auth]
func (h *Handler) upgrade(c *gin.Context) {
	author, err := h.svc.UpgradeToAuthor(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Redirect(c, "/news/", gin.H{"author": author})
}
