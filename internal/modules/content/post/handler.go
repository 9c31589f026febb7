package post

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/processing/markdown"
	"github.com/newsroom/core/internal/pkg/pagination"
	"github.com/newsroom/core/internal/pkg/response"
	"github.com/newsroom/core/internal/pkg/validate"
)

// Handler handles post HTTP requests.
type Handler struct {
	svc   *Service
	perms middleware.PermissionChecker
}

func NewHandler(svc *Service, perms middleware.PermissionChecker) *Handler {
	return &Handler{svc: svc, perms: perms}
}

// RegisterRoutes mounts post routes onto the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	news := rg.Group("/news")
	news.GET("/search", h.search)

	authed := news.Group("", authMW)
	canAdd := middleware.RequirePermission(h.perms, models.PermPostAdd)
	canEdit := middleware.RequirePermission(h.perms, models.PermPostEdit)
	canDelete := middleware.RequirePermission(h.perms, models.PermPostDelete)

	authed.GET("/", h.list)
	authed.POST("/", canAdd, h.listCreate)
	authed.GET("/create", canAdd, h.createForm)
	authed.POST("/create", canAdd, h.create)
	authed.GET("/:id", h.detail)
	authed.GET("/:id/edit", canEdit, h.editForm)
	authed.POST("/:id/edit", canEdit, h.update)
	authed.PUT("/:id/edit", canEdit, h.update)
	authed.GET("/:id/delete", canDelete, h.deleteConfirm)
	authed.POST("/:id/delete", canDelete, h.delete)
	authed.DELETE("/:id/delete", canDelete, h.delete)
}

// list GET /news/  [auth]
func (h *Handler) list(c *gin.Context) {
	h.renderList(c, nil)
}

// listCreate POST /news/  [auth, post_add]
func (h *Handler) listCreate(c *gin.Context) {
	var form PostForm
	if err := c.ShouldBind(&form); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	post, ok := h.createPost(c, &form)
	if !ok {
		return
	}
	h.renderList(c, gin.H{"created": toResponse(post)})
}

func (h *Handler) renderList(c *gin.Context, extra gin.H) {
	ctx := c.Request.Context()

	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	posts, pag, err := h.svc.List(ctx, pagination.FixedSize(c, ListPageSize), lq)
	if err != nil {
		h.listError(c, err)
		return
	}
	cats, err := h.svc.Categories(ctx)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	canAdd, err := h.perms.HasPermission(ctx, middleware.CurrentUserID(c), models.PermPostAdd)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	categories := make([]categoryRef, len(cats))
	for i, cat := range cats {
		categories[i] = categoryRef{ID: cat.ID, Name: cat.Name}
	}
	body := gin.H{
		"data":          toResponses(posts),
		"pagination":    pag,
		"filter":        lq,
		"categories":    categories,
		"form":          PostForm{},
		"is_not_author": !canAdd,
	}
	for k, v := range extra {
		body[k] = v
	}
	response.OK(c, body)
}

// search GET /news/search
func (h *Handler) search(c *gin.Context) {
	var lq ListQuery
	if err := c.ShouldBindQuery(&lq); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	posts, pag, err := h.svc.List(c.Request.Context(), pagination.FixedSize(c, SearchPageSize), lq)
	if err != nil {
		h.listError(c, err)
		return
	}
	response.Paged(c, toResponses(posts), pag)
}

func (h *Handler) listError(c *gin.Context, err error) {
	if errors.Is(err, ErrInvalidDate) {
		response.Invalid(c, map[string]string{"after": err.Error()})
		return
	}
	response.InternalError(c, err)
}

// createForm GET /news/create  [auth, post_add]
func (h *Handler) createForm(c *gin.Context) {
	response.OK(c, gin.H{"form": PostForm{}})
}

// create POST /news/create  [auth, post_add]
func (h *Handler) create(c *gin.Context) {
	var form PostForm
	if err := c.ShouldBind(&form); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	post, ok := h.createPost(c, &form)
	if !ok {
		return
	}
	response.Created(c, toResponse(post))
}

func (h *Handler) createPost(c *gin.Context, form *PostForm) (*models.PostModel, bool) {
	post, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), form)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			response.Invalid(c, map[string]string{"category_id": err.Error()})
			return nil, false
		}
		response.InternalError(c, err)
		return nil, false
	}
	return post, true
}

// detail GET /news/:id  [auth]
func (h *Handler) detail(c *gin.Context) {
	ctx := c.Request.Context()
	post, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	comments, err := h.svc.ApprovedComments(ctx, post.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"post":         toResponse(post),
		"html":         markdown.Render(post.Text),
		"comments":     toCommentItems(comments),
		"comment_form": gin.H{"text": "", "parent_id": nil},
	})
}

// editForm GET /news/:id/edit  [auth, post_edit]
func (h *Handler) editForm(c *gin.Context) {
	post, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{
		"post": toResponse(post),
		"form": UpdatePostDTO{
			Title:       &post.Title,
			Text:        &post.Text,
			CategoryID:  &post.CategoryID,
			PublishedAt: &post.PublishedAt,
		},
	})
}

// update POST|PUT /news/:id/edit  [auth, post_edit]
func (h *Handler) update(c *gin.Context) {
	var dto UpdatePostDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	post, err := h.svc.Update(c.Request.Context(), c.Param("id"), &dto)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			response.Invalid(c, map[string]string{"category_id": err.Error()})
			return
		}
		response.InternalError(c, err)
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, toResponse(post))
}

// deleteConfirm GET /news/:id/delete  [auth, post_delete]
func (h *Handler) deleteConfirm(c *gin.Context) {
	post, err := h.svc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if post == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{
		"post":    toResponse(post),
		"confirm": "delete this post and all of its comments?",
	})
}

// delete POST|DELETE /news/:id/delete  [auth, post_delete]
func (h *Handler) delete(c *gin.Context) {
	found, err := h.svc.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if !found {
		response.NotFound(c)
		return
	}
	response.Redirect(c, "/news/", gin.H{"message": "post deleted"})
}
