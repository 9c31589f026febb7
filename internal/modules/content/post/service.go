package post

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/pkg/pagination"
	"github.com/newsroom/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	ListPageSize   = 5
	SearchPageSize = 50
)

var listPreloads = []string{"Category", "Author.User"}

// AuthorResolver finds or creates the author record of a user.
type AuthorResolver interface {
	EnsureAuthor(ctx context.Context, userID string) (*models.AuthorModel, error)
}

// Notifier is told about newly created posts.
type Notifier interface {
	OnPostCreate(ctx context.Context, post *models.PostModel)
}

// Service handles post business logic.
type Service struct {
	db       *gorm.DB
	authors  AuthorResolver
	notifier Notifier
}

func NewService(db *gorm.DB, authors AuthorResolver, notifier Notifier) *Service {
	return &Service{db: db, authors: authors, notifier: notifier}
}

// List returns one page of posts matching lq, newest first.
func (s *Service) List(ctx context.Context, q pagination.Query, lq ListQuery) ([]models.PostModel, response.Pagination, error) {
	after, err := lq.AfterTime()
	if err != nil {
		return nil, response.Pagination{}, err
	}

	db := s.db.WithContext(ctx)
	tx := db.Model(&models.PostModel{})

	if title := strings.TrimSpace(lq.Title); title != "" {
		tx = tx.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(title)+"%")
	}
	if author := strings.TrimSpace(lq.Author); author != "" {
		users := db.Model(&models.UserModel{}).Select("id").Where("username = ?", author)
		authors := db.Model(&models.AuthorModel{}).Select("id").Where("id = ? OR user_id IN (?)", author, users)
		tx = tx.Where("author_id IN (?)", authors)
	}
	if category := strings.TrimSpace(lq.Category); category != "" {
		cats := db.Model(&models.CategoryModel{}).Select("id").Where("id = ? OR name = ?", category, category)
		tx = tx.Where("category_id IN (?)", cats)
	}
	if after != nil {
		tx = tx.Where("published_at >= ?", *after)
	}

	var posts []models.PostModel
	pag, err := pagination.Paginate(tx.Order("published_at DESC"), q, &posts, listPreloads...)
	return posts, pag, err
}

// GetByID fetches a post with its category and author. Returns (nil, nil)
// when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*models.PostModel, error) {
	var post models.PostModel
	err := s.db.WithContext(ctx).Preload("Category").Preload("Author.User").First(&post, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &post, nil
}

// Categories returns every category by name.
func (s *Service) Categories(ctx context.Context) ([]models.CategoryModel, error) {
	var cats []models.CategoryModel
	err := s.db.WithContext(ctx).Order("name ASC").Find(&cats).Error
	return cats, err
}

// ApprovedComments returns the visible comments of a post, oldest first.
func (s *Service) ApprovedComments(ctx context.Context, postID string) ([]models.CommentModel, error) {
	var comments []models.CommentModel
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("post_id = ? AND approved = ?", postID, true).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (s *Service) categoryExists(tx *gorm.DB, id string) (bool, error) {
	var count int64
	err := tx.Model(&models.CategoryModel{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Create stores a post written by userID and notifies category subscribers.
func (s *Service) Create(ctx context.Context, userID string, form *PostForm) (*models.PostModel, error) {
	ok, err := s.categoryExists(s.db.WithContext(ctx), form.CategoryID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCategoryNotFound
	}

	author, err := s.authors.EnsureAuthor(ctx, userID)
	if err != nil {
		return nil, err
	}

	post := models.PostModel{
		Title:       strings.TrimSpace(form.Title),
		Text:        form.Text,
		PublishedAt: time.Now(),
		CategoryID:  form.CategoryID,
		AuthorID:    author.ID,
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.OnPostCreate(ctx, &post)
	}
	return s.GetByID(ctx, post.ID)
}

// Update applies the set fields of dto. Returns (nil, nil) when the post does
// not exist.
func (s *Service) Update(ctx context.Context, id string, dto *UpdatePostDTO) (*models.PostModel, error) {
	db := s.db.WithContext(ctx)
	var post models.PostModel
	if err := db.First(&post, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Title != nil {
		updates["title"] = strings.TrimSpace(*dto.Title)
	}
	if dto.Text != nil {
		updates["text"] = *dto.Text
	}
	if dto.CategoryID != nil {
		ok, err := s.categoryExists(db, *dto.CategoryID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrCategoryNotFound
		}
		updates["category_id"] = *dto.CategoryID
	}
	if dto.PublishedAt != nil && !dto.PublishedAt.IsZero() {
		updates["published_at"] = *dto.PublishedAt
	}
	if len(updates) > 0 {
		if err := db.Model(&post).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.GetByID(ctx, id)
}

// Delete removes the post and its comments. It reports whether the post existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&models.CommentModel{}).Error; err != nil {
			return err
		}
		res := tx.Delete(&models.PostModel{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		found = res.RowsAffected > 0
		return nil
	})
	return found, err
}
