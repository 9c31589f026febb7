package models

import (
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of runes kept by Preview.
const PreviewLength = 124

// PostModel is a news article or blog post.
type PostModel struct {
	Base
	Title       string         `json:"title"        gorm:"not null"`
	Text        string         `json:"text"         gorm:"type:longtext"`
	PublishedAt time.Time      `json:"published_at" gorm:"index;not null"`
	CategoryID  string         `json:"category_id"  gorm:"type:char(36);index;not null"`
	Category    *CategoryModel `json:"category,omitempty" gorm:"foreignKey:CategoryID"`
	AuthorID    string         `json:"author_id"    gorm:"type:char(36);index;not null"`
	Author      *AuthorModel   `json:"author,omitempty"   gorm:"foreignKey:AuthorID"`
	Rating      int            `json:"rating"       gorm:"default:0"`
}

func (PostModel) TableName() string { return "posts" }

// Preview returns the opening of the post text, suffixed with "..." when cut.
func (p PostModel) Preview() string {
	if utf8.RuneCountInString(p.Text) <= PreviewLength {
		return p.Text
	}
	return string([]rune(p.Text)[:PreviewLength]) + "..."
}
