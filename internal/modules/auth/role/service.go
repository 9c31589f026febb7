// Package role assigns users to permission groups and answers capability checks.
package role

import (
	"context"
	"errors"

	"github.com/newsroom/core/internal/database"
	"github.com/newsroom/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrUserNotFound  = errors.New("user not found")
)

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

// WithTx returns a Service running inside an open transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service { return &Service{db: tx} }

// EnsureDefaultGroups creates the built-in groups that are missing.
func (s *Service) EnsureDefaultGroups(ctx context.Context) error {
	return database.SeedGroups(s.db.WithContext(ctx))
}

// AddToGroup makes userID a member of the named group. Adding an existing
// member is a no-op.
func (s *Service) AddToGroup(ctx context.Context, userID, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return addToGroup(tx, userID, groupName)
	})
}

func addToGroup(tx *gorm.DB, userID, groupName string) error {
	user, group, err := loadMembership(tx, userID, groupName)
	if err != nil {
		return err
	}
	member, err := isMember(tx, user, groupName)
	if err != nil || member {
		return err
	}
	return tx.Model(user).Association("Groups").Append(group)
}

// RemoveFromGroup drops the membership. Removing a non-member is a no-op.
func (s *Service) RemoveFromGroup(ctx context.Context, userID, groupName string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, group, err := loadMembership(tx, userID, groupName)
		if err != nil {
			return err
		}
		return tx.Model(user).Association("Groups").Delete(group)
	})
}

// IsMember reports whether userID belongs to the named group.
func (s *Service) IsMember(ctx context.Context, userID, groupName string) (bool, error) {
	return isMember(s.db.WithContext(ctx), &models.UserModel{Base: models.Base{ID: userID}}, groupName)
}

func isMember(tx *gorm.DB, user *models.UserModel, groupName string) (bool, error) {
	var count int64
	err := tx.Model(&models.GroupModel{}).
		Joins("JOIN user_groups ON user_groups.group_id = auth_groups.id").
		Where("user_groups.user_id = ? AND auth_groups.name = ?", user.ID, groupName).
		Count(&count).Error
	return count > 0, err
}

func loadMembership(tx *gorm.DB, userID, groupName string) (*models.UserModel, *models.GroupModel, error) {
	var user models.UserModel
	if err := tx.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}
	var group models.GroupModel
	if err := tx.First(&group, "name = ?", groupName).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrGroupNotFound
		}
		return nil, nil, err
	}
	return &user, &group, nil
}

// Permissions returns the union of permissions granted by the user's groups.
func (s *Service) Permissions(ctx context.Context, userID string) ([]string, error) {
	var groups []models.GroupModel
	err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.group_id = auth_groups.id").
		Where("user_groups.user_id = ?", userID).
		Order("auth_groups.name").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	perms := make([]string, 0)
	for _, g := range groups {
		for _, p := range g.Permissions {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
	}
	return perms, nil
}

// HasPermission reports whether any of the user's groups grants perm.
func (s *Service) HasPermission(ctx context.Context, userID, perm string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	perms, err := s.Permissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if p == perm {
			return true, nil
		}
	}
	return false, nil
}

// AuthorFor returns the user's author record, or (nil, nil) when there is none.
func (s *Service) AuthorFor(ctx context.Context, userID string) (*models.AuthorModel, error) {
	var author models.AuthorModel
	if err := s.db.WithContext(ctx).First(&author, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &author, nil
}

// EnsureAuthor returns the user's author record, creating it if missing.
func (s *Service) EnsureAuthor(ctx context.Context, userID string) (*models.AuthorModel, error) {
	var author *models.AuthorModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		author, err = upsertAuthor(tx, userID)
		return err
	})
	return author, err
}

// UpgradeToAuthor gives the user an author record and the authors group.
// Repeating it changes nothing.
func (s *Service) UpgradeToAuthor(ctx context.Context, userID string) (*models.AuthorModel, error) {
	var author *models.AuthorModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if author, err = upsertAuthor(tx, userID); err != nil {
			return err
		}
		return addToGroup(tx, userID, models.GroupAuthors)
	})
	if err != nil {
		return nil, err
	}
	return author, nil
}

func upsertAuthor(tx *gorm.DB, userID string) (*models.AuthorModel, error) {
	var count int64
	if err := tx.Model(&models.UserModel{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	author := models.AuthorModel{UserID: userID}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&author).Error
	if err != nil {
		return nil, err
	}

	var stored models.AuthorModel
	if err := tx.First(&stored, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}
