package database

import (
	"errors"
	"fmt"

	"github.com/newsroom/core/internal/config"
	"github.com/newsroom/core/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database and optionally runs auto-migration
// and default group seeding.
func Connect(cfg *config.AppConfig, autoMigrate bool) (*gorm.DB, error) {
	db, err := openDB(cfg, resolveLogLevel(cfg))
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := Migrate(db); err != nil {
			return nil, fmt.Errorf("migration failed: %w", err)
		}
	}
	if err := SeedGroups(db); err != nil {
		return nil, fmt.Errorf("seed groups: %w", err)
	}
	return db, nil
}

func resolveLogLevel(cfg *config.AppConfig) logger.LogLevel {
	if cfg.IsDev() {
		return logger.Info
	}
	return logger.Warn
}

func openDB(cfg *config.AppConfig, logLevel logger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case config.DriverMySQL:
		dialector = mysql.New(mysql.Config{
			DSN:               cfg.DSN,
			DefaultStringSize: 191,
		})
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	return db, nil
}

// Migrate runs GORM auto-migration for all models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.UserModel{},
		&models.GroupModel{},
		&models.UserSession{},
		&models.AuthorModel{},
		&models.CategoryModel{},
		&models.PostModel{},
		&models.CommentModel{},
	)
}

// DefaultGroups are created on startup when missing.
var DefaultGroups = []models.GroupModel{
	{Name: models.GroupAuthors, Permissions: models.StringArray{
		models.PermPostAdd,
		models.PermPostEdit,
		models.PermPostDelete,
	}},
	{Name: models.GroupCommon, Permissions: models.StringArray{}},
	{Name: models.GroupEditors, Permissions: models.StringArray{
		models.PermCategoryAdd,
		models.PermCommentModerate,
		models.PermTaskManage,
	}},
}

// SeedGroups inserts DefaultGroups that do not exist yet. Existing groups keep
// whatever permissions an operator gave them.
func SeedGroups(db *gorm.DB) error {
	for _, g := range DefaultGroups {
		var existing models.GroupModel
		err := db.Where("name = ?", g.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		group := models.GroupModel{Name: g.Name, Permissions: append(models.StringArray{}, g.Permissions...)}
		if err := db.Create(&group).Error; err != nil {
			return err
		}
	}
	return nil
}
