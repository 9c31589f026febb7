package category

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/pkg/pagination"
	"github.com/newsroom/core/internal/pkg/response"
	"github.com/newsroom/core/internal/pkg/validate"
)

const (
	msgSubscribed   = "subscribed to category"
	msgUnsubscribed = "unsubscribed from category"
)

type categoryResponse struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
}

type postItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Preview     string    `json:"preview"`
	PublishedAt time.Time `json:"published_at"`
	Author      string    `json:"author"`
}

func toResponse(c *models.CategoryModel) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Created: c.CreatedAt}
}

func toPostItems(posts []models.PostModel) []postItem {
	items := make([]postItem, len(posts))
	for i, p := range posts {
		items[i] = postItem{ID: p.ID, Title: p.Title, Preview: p.Preview(), PublishedAt: p.PublishedAt}
		if p.Author != nil && p.Author.User != nil {
			items[i].Author = p.Author.User.Username
		}
	}
	return items
}

type Handler struct {
	svc       *Service
	perms     middleware.PermissionChecker
	listCache gin.HandlerFunc
}

func NewHandler(svc *Service, perms middleware.PermissionChecker) *Handler {
	return &Handler{svc: svc, perms: perms}
}

// SetListCache wraps the public category list with a response cache (optional).
func (h *Handler) SetListCache(mw gin.HandlerFunc) { h.listCache = mw }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	cats := rg.Group("/categories")
	if h.listCache != nil {
		cats.GET("/", h.listCache, h.list)
	} else {
		cats.GET("/", h.list)
	}
	cats.GET("/:id", h.show)

	authed := cats.Group("", authMW)
	authed.POST("/", middleware.RequirePermission(h.perms, models.PermCategoryAdd), h.create)
	authed.GET("/:id/subscribe", h.subscribe)
	authed.GET("/:id/unsubscribe", h.unsubscribe)
}

// list GET /categories/
func (h *Handler) list(c *gin.Context) {
	cats, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	items := make([]categoryResponse, len(cats))
	for i := range cats {
		items[i] = toResponse(&cats[i])
	}
	response.OK(c, items)
}

// create POST /categories/  [auth, category_add]
func (h *Handler) create(c *gin.Context) {
	var dto CreateCategoryDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	cat, err := h.svc.Create(c.Request.Context(), &dto)
	if err != nil {
		if errors.Is(err, ErrNameTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, toResponse(cat))
}

// show GET /categories/:id
func (h *Handler) show(c *gin.Context) {
	ctx := c.Request.Context()
	cat, err := h.svc.GetByID(ctx, c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if cat == nil {
		response.NotFound(c)
		return
	}
	posts, pag, err := h.svc.Posts(ctx, cat.ID, pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	subscribed, err := h.svc.IsSubscriber(ctx, cat.ID, middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{
		"category":          toResponse(cat),
		"data":              toPostItems(posts),
		"pagination":        pag,
		"is_not_subscriber": !subscribed,
	})
}

// subscribe GET /categories/:id/subscribe  [auth]
func (h *Handler) subscribe(c *gin.Context) {
	cat, err := h.svc.Subscribe(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	h.subscriptionResult(c, cat, err, msgSubscribed)
}

// unsubscribe GET /categories/:id/unsubscribe  [auth]
func (h *Handler) unsubscribe(c *gin.Context) {
	cat, err := h.svc.Unsubscribe(c.Request.Context(), c.Param("id"), middleware.CurrentUserID(c))
	h.subscriptionResult(c, cat, err, msgUnsubscribed)
}

func (h *Handler) subscriptionResult(c *gin.Context, cat *models.CategoryModel, err error, msg string) {
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	if cat == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, gin.H{"message": msg, "category": toResponse(cat)})
}
