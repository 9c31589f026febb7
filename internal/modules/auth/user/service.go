package user

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/auth/role"
	sessionpkg "github.com/newsroom/core/internal/pkg/session"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	roles *role.Service
}

func NewService(db *gorm.DB, roles *role.Service) *Service {
	return &Service{db: db, roles: roles}
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.UserModel, error) {
	var u models.UserModel
	if err := s.db.WithContext(ctx).Preload("Groups").First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// Register creates the account and puts it in the common group.
func (s *Service) Register(ctx context.Context, dto *SignupDTO) (*models.UserModel, error) {
	username := strings.TrimSpace(dto.Username)
	if utf8.RuneCountInString(username) < 3 {
		return nil, ErrUsernameTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := models.UserModel{
		Username:  username,
		Email:     strings.TrimSpace(dto.Email),
		FirstName: strings.TrimSpace(dto.FirstName),
		LastName:  strings.TrimSpace(dto.LastName),
		Password:  string(hash),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.UserModel{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return s.roles.WithTx(tx).AddToGroup(ctx, u.ID, models.GroupCommon)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Login checks the password and opens a session, returning its token.
func (s *Service) Login(ctx context.Context, username, password, ip, ua string) (string, *models.UserModel, error) {
	var u models.UserModel
	err := s.db.WithContext(ctx).Preload("Groups").Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Model(&u).Updates(map[string]interface{}{
		"last_login_time": now,
		"last_login_ip":   ip,
	}).Error
	if err != nil {
		return "", nil, err
	}
	u.LastLoginTime = &now
	u.LastLoginIP = ip

	token, _, err := sessionpkg.Issue(s.db.WithContext(ctx), u.ID, ip, ua, sessionpkg.DefaultTTL)
	if err != nil {
		return "", nil, err
	}
	return token, &u, nil
}

// Logout revokes the session. Revoking an already closed session is not an error.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	err := sessionpkg.Revoke(s.db.WithContext(ctx), userID, sessionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}
