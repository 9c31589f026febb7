package comment

import (
	"context"
	"errors"
	"strings"

	"github.com/newsroom/core/internal/middleware"
	"github.com/newsroom/core/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Notifier is told about every new comment.
type Notifier interface {
	OnCommentCreate(ctx context.Context, comment *models.CommentModel, post *models.PostModel, username string)
}

type Service struct {
	db       *gorm.DB
	perms    middleware.PermissionChecker
	notifier Notifier
	logger   *zap.Logger
}

func NewService(db *gorm.DB, perms middleware.PermissionChecker, notifier Notifier) *Service {
	return &Service{db: db, perms: perms, notifier: notifier, logger: zap.NewNop()}
}

func (s *Service) SetLogger(logger *zap.Logger) {
	if logger != nil {
		s.logger = logger.Named("CommentService")
	}
}

// Create attaches an unapproved comment by userID to postID. The post and
// parent checks run in the same transaction as the insert.
func (s *Service) Create(ctx context.Context, postID, userID string, dto *CreateCommentDTO) (*models.CommentModel, error) {
	parentID := normalizeParentID(dto.ParentID)

	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var post models.PostModel
	if err := tx.First(&post, "id = ?", postID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}

	if parentID != nil {
		var parent models.CommentModel
		if err := tx.First(&parent, "id = ?", *parentID).Error; err != nil {
			tx.Rollback()
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrParentNotFound
			}
			return nil, err
		}
		if parent.PostID != post.ID {
			tx.Rollback()
			return nil, ErrParentOtherPost
		}
	}

	c := models.CommentModel{
		PostID:   post.ID,
		UserID:   userID,
		ParentID: parentID,
		Text:     strings.TrimSpace(dto.Text),
		Approved: false,
	}
	if err := tx.Create(&c).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}

	if s.notifier != nil {
		var user models.UserModel
		if err := s.db.WithContext(ctx).Select("id, username").First(&user, "id = ?", userID).Error; err != nil {
			s.logger.Warn("comment author lookup failed",
				zap.String("comment_id", c.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		s.notifier.OnCommentCreate(ctx, &c, &post, user.Username)
	}
	return &c, nil
}

// ListByUser returns the comments written by userID, newest first. A non-empty
// postID narrows the list to that post.
func (s *Service) ListByUser(ctx context.Context, userID, postID string) ([]models.CommentModel, error) {
	tx := s.db.WithContext(ctx).Preload("Post").Where("user_id = ?", userID)
	if postID != "" {
		tx = tx.Where("post_id = ?", postID)
	}
	var comments []models.CommentModel
	err := tx.Order("created_at DESC").Find(&comments).Error
	return comments, err
}

// GetByID returns the comment with its post and the post's author, or
// (nil, nil) when absent.
func (s *Service) GetByID(ctx context.Context, id string) (*models.CommentModel, error) {
	var c models.CommentModel
	if err := s.db.WithContext(ctx).Preload("Post.Author").First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// CanModerate reports whether userID may approve or delete c: the author of
// the post it is on, or a holder of comment_moderate.
func (s *Service) CanModerate(ctx context.Context, userID string, c *models.CommentModel) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if c.Post != nil && c.Post.Author != nil && c.Post.Author.UserID == userID {
		return true, nil
	}
	return s.perms.HasPermission(ctx, userID, models.PermCommentModerate)
}

// CanDelete extends CanModerate with the comment's own author.
func (s *Service) CanDelete(ctx context.Context, userID string, c *models.CommentModel) (bool, error) {
	if userID != "" && c.UserID == userID {
		return true, nil
	}
	return s.CanModerate(ctx, userID, c)
}

// Approve marks the comment approved. Approving twice is harmless. Returns
// (nil, nil) when the comment does not exist.
func (s *Service) Approve(ctx context.Context, id string) (*models.CommentModel, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&models.CommentModel{}).Where("id = ?", id).Update("approved", true)
	if res.Error != nil {
		return nil, res.Error
	}
	var c models.CommentModel
	if err := db.Preload("Post").First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// Delete removes the comment and every reply below it. It reports whether the
// comment existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CommentModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		found = true

		ids := []string{id}
		frontier := []string{id}
		for len(frontier) > 0 {
			var children []string
			if err := tx.Model(&models.CommentModel{}).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
				return err
			}
			ids = append(ids, children...)
			frontier = children
		}
		return tx.Where("id IN ?", ids).Delete(&models.CommentModel{}).Error
	})
	return found, err
}
