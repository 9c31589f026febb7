package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/modules/auth/role"
	"github.com/newsroom/core/internal/pkg/response"
	sessionpkg "github.com/newsroom/core/internal/pkg/session"
	"github.com/newsroom/core/internal/pkg/validate"
)

type Handler struct {
	svc   *Service
	roles *role.Service
}

func NewHandler(svc *Service, roles *role.Service) *Handler {
	return &Handler{svc: svc, roles: roles}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/accounts")
	g.GET("/signup", h.signupForm)
	g.POST("/signup", h.signup)
	g.POST("/login", h.login)

	a := g.Group("", authMW)
	a.POST("/logout", h.logout)
	a.GET("/me", h.me)
}

// signupForm GET /accounts/signup
func (h *Handler) signupForm(c *gin.Context) {
	response.OK(c, gin.H{"form": SignupDTO{}})
}

// signup POST /accounts/signup
func (h *Handler) signup(c *gin.Context) {
	var dto SignupDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	u, err := h.svc.Register(c.Request.Context(), &dto)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			response.Conflict(c, err.Error())
			return
		}
		if errors.Is(err, ErrUsernameTooShort) {
			response.Invalid(c, map[string]string{"username": "must be at least 3 characters"})
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Redirect(c, "/", gin.H{"user": toResponse(u, nil)})
}

// login POST /accounts/login
func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBind(&dto); err != nil {
		response.Invalid(c, validate.FieldErrors(err))
		return
	}
	token, u, err := h.svc.Login(c.Request.Context(), dto.Username, dto.Password, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.ForbiddenMsg(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.TokenCookie, token, int(sessionpkg.DefaultTTL.Seconds()), "/", "", false, true)
	response.OK(c, loginResponse{Token: token, User: toResponse(u, nil)})
}

// logout POST /accounts/logout  [auth]
func (h *Handler) logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentSessionID(c)); err != nil {
		response.InternalError(c, err)
		return
	}
	c.SetCookie(middleware.TokenCookie, "", -1, "/", "", false, true)
	response.NoContent(c)
}

// me GET /accounts/me  [auth]
func (h *Handler) me(c *gin.Context) {
	ctx := c.Request.Context()
	u, err := h.svc.GetByID(ctx, middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.Unauthorized(c)
		return
	}
	perms, err := h.roles.Permissions(ctx, u.ID)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, toResponse(u, perms))
}
