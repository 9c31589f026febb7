package category

import (
	"context"
	"errors"
	"strings"

	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/pkg/pagination"
	"github.com/newsroom/core/internal/pkg/response"
	"gorm.io/gorm"
)

type CreateCategoryDTO struct {
	Name string `json:"name" form:"name" binding:"required,notblank,max=100"`
}

var (
	ErrNameTaken    = errors.New("category name already exists")
	ErrUserNotFound = errors.New("user not found")
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) List(ctx context.Context) ([]models.CategoryModel, error) {
	var cats []models.CategoryModel
	return cats, s.db.WithContext(ctx).Order("name ASC").Find(&cats).Error
}

func (s *Service) GetByID(ctx context.Context, id string) (*models.CategoryModel, error) {
	var cat models.CategoryModel
	if err := s.db.WithContext(ctx).First(&cat, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cat, nil
}

func (s *Service) Create(ctx context.Context, dto *CreateCategoryDTO) (*models.CategoryModel, error) {
	name := strings.TrimSpace(dto.Name)
	var cat models.CategoryModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CategoryModel{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrNameTaken
		}
		cat = models.CategoryModel{Name: name}
		return tx.Create(&cat).Error
	})
	if err != nil {
		return nil, err
	}
	return &cat, nil
}

// Posts returns one page of the category's posts, newest first.
func (s *Service) Posts(ctx context.Context, categoryID string, q pagination.Query) ([]models.PostModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.PostModel{}).
		Where("category_id = ?", categoryID).
		Order("published_at DESC")

	var posts []models.PostModel
	pag, err := pagination.Paginate(tx, q, &posts, "Author.User")
	return posts, pag, err
}

// IsSubscriber reports whether userID receives mail about the category.
func (s *Service) IsSubscriber(ctx context.Context, categoryID, userID string) (bool, error) {
	return isSubscriber(s.db.WithContext(ctx), categoryID, userID)
}

func isSubscriber(tx *gorm.DB, categoryID, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	var count int64
	err := tx.Table("category_subscribers").
		Where("category_id = ? AND user_id = ?", categoryID, userID).
		Count(&count).Error
	return count > 0, err
}

// Subscribe adds userID to the category's subscribers. Subscribing twice
// changes nothing. Returns (nil, nil) when the category does not exist.
func (s *Service) Subscribe(ctx context.Context, categoryID, userID string) (*models.CategoryModel, error) {
	return s.changeSubscription(ctx, categoryID, userID, func(tx *gorm.DB, cat *models.CategoryModel, user *models.UserModel) error {
		member, err := isSubscriber(tx, cat.ID, user.ID)
		if err != nil || member {
			return err
		}
		return tx.Model(cat).Omit("Subscribers.*").Association("Subscribers").Append(user)
	})
}

// Unsubscribe removes userID from the subscribers. Removing a non-subscriber
// is a no-op.
func (s *Service) Unsubscribe(ctx context.Context, categoryID, userID string) (*models.CategoryModel, error) {
	return s.changeSubscription(ctx, categoryID, userID, func(tx *gorm.DB, cat *models.CategoryModel, user *models.UserModel) error {
		return tx.Model(cat).Association("Subscribers").Delete(user)
	})
}

func (s *Service) changeSubscription(ctx context.Context, categoryID, userID string, fn func(*gorm.DB, *models.CategoryModel, *models.UserModel) error) (*models.CategoryModel, error) {
	var cat *models.CategoryModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found models.CategoryModel
		if err := tx.First(&found, "id = ?", categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		var user models.UserModel
		if err := tx.First(&user, "id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := fn(tx, &found, &user); err != nil {
			return err
		}
		cat = &found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cat, nil
}
