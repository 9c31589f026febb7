package comment

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/pkg/response"
	"github.com/newsroom/core/internal/pkg/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	news := rg.Group("/news", authMW)
	news.POST("/:id", h.create)
	news.GET("/:id/comments/create", h.createForm)
	news.POST("/:id/comments/create", h.create)

	g := rg.Group("/comments", authMW)
	g.GET("/", h.listMine)
	g.GET("/post/:id", h.listMineByPost)
	g.GET("/:id/delete", h.deleteConfirm)
	g.POST("/:id/delete", h.delete)
	g.DELETE("/:id/delete", h.delete)
	g.POST("/:id/approve", h.approve)
}

// createForm GET /news/:id/comments/create  [auth]
func (h *Handler) createForm(c *gin.Context) {
	response.OK(c, gin.H{"post_id": c.Param("id"), "form": CreateCommentDTO{}})
}

// create POST /news/:id, POST /news/:id/comments/create  [auth]
func (h *Handler) create(c *gin.Context) {
	var dto CreateCommentDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}

	postID := c.Param("id")
	cm, err := h.svc.Create(c.Request.Context(), postID, middleware.CurrentUserID(c), &dto)
	if err != nil {
		switch {
		case errors.Is(err, ErrPostNotFound):
			response.NotFoundMsg(c, err.Error())
		case errors.Is(err, ErrParentNotFound), errors.Is(err, ErrParentOtherPost):
			response.Invalid(c, map[string]string{"parent_id": err.Error()})
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Redirect(c, "/news/"+postID, gin.H{"comment": toResponse(cm)})
}

// listMine GET /comments/  [auth]
func (h *Handler) listMine(c *gin.Context) {
	comments, err := h.svc.ListByUser(c.Request.Context(), middleware.CurrentUserID(c), "")
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(comments))
}

// listMineByPost GET /comments/post/:id  [auth]
func (h *Handler) listMineByPost(c *gin.Context) {
	comments, err := h.svc.ListByUser(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponses(comments))
}

// deleteConfirm GET /comments/:id/delete  [auth]
func (h *Handler) deleteConfirm(c *gin.Context) {
	ctx := c.Request.Context()
	cm, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cm == nil {
		response.NotFound(c)
		return
	}
	ok, err := h.svc.CanDelete(ctx, middleware.CurrentUserID(c), cm)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.Forbidden(c)
		return
	}
	response.OK(c, gin.H{
		"comment": toResponse(cm),
		"confirm": "delete this comment and its replies?",
	})
}

// delete POST|DELETE /comments/:id/delete  [auth]
func (h *Handler) delete(c *gin.Context) {
	ctx := c.Request.Context()
	cm, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cm == nil {
		response.NotFound(c)
		return
	}
	ok, err := h.svc.CanDelete(ctx, middleware.CurrentUserID(c), cm)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.Forbidden(c)
		return
	}
	if _, err := h.svc.Delete(ctx, cm.ID); err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"message": msgDeleted, "id": cm.ID})
}

// approve POST /comments/:id/approve  [auth]
func (h *Handler) approve(c *gin.Context) {
	ctx := c.Request.Context()
	cm, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cm == nil {
		response.NotFound(c)
		return
	}
	ok, err := h.svc.CanModerate(ctx, middleware.CurrentUserID(c), cm)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !ok {
		response.Forbidden(c)
		return
	}
	approved, err := h.svc.Approve(ctx, cm.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if approved == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{"message": msgApproved, "comment": toResponse(approved)})
}
