package user

import (
	"errors"
	"time"

	"github.com/newsroom/core/internal/models"
)

// SignupDTO is the registration form.
type SignupDTO struct {
	Username        string `json:"username"         form:"username"         binding:"required,notblank,min=3,max=150"`
	Email           string `json:"email"            form:"email"            binding:"omitempty,email"`
	FirstName       string `json:"first_name"       form:"first_name"       binding:"max=150"`
	LastName        string `json:"last_name"        form:"last_name"        binding:"max=150"`
	Password        string `json:"password"         form:"password"         binding:"required,min=6"`
	PasswordConfirm string `json:"password_confirm" form:"password_confirm" binding:"required,eqfield=Password"`
}

type LoginDTO struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type userResponse struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	Groups        []string   `json:"groups"`
	Permissions   []string   `json:"permissions,omitempty"`
	LastLoginTime *time.Time `json:"last_login_time"`
	Created       time.Time  `json:"created"`
}

type loginResponse struct {
	Token string        `json:"token"`
	User  *userResponse `json:"user"`
}

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrUsernameTooShort   = errors.New("username must be at least 3 characters")
	ErrInvalidCredentials = errors.New("wrong username or password")
)

func toResponse(u *models.UserModel, perms []string) *userResponse {
	groups := make([]string, 0, len(u.Groups))
	for _, g := range u.Groups {
		groups = append(groups, g.Name)
	}
	return &userResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		Groups:        groups,
		Permissions:   perms,
		LastLoginTime: u.LastLoginTime,
		Created:       u.CreatedAt,
	}
}
