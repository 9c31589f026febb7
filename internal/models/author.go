package models

// AuthorModel marks a user as able to publish. At most one row exists per user.
type AuthorModel struct {
	Base
	UserID string     `json:"user_id" gorm:"type:char(36);uniqueIndex;not null"`
	User   *UserModel `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Rating int        `json:"rating"  gorm:"default:0"`
}

func (AuthorModel) TableName() string { return "authors" }
