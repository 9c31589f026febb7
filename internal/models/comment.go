package models

// CommentModel is a reader comment on a post. Comments start unapproved and
// only approved ones are shown on the post page.
type CommentModel struct {
	Base
	PostID   string         `json:"post_id"   gorm:"type:char(36);not null;index"`
	Post     *PostModel     `json:"post,omitempty" gorm:"foreignKey:PostID"`
	UserID   string         `json:"user_id"   gorm:"type:char(36);not null;index"`
	User     *UserModel     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	ParentID *string        `json:"parent_id" gorm:"type:char(36);index"`
	Children []CommentModel `json:"children,omitempty" gorm:"foreignKey:ParentID"`
	Text     string         `json:"text"      gorm:"type:text;not null"`
	Approved bool           `json:"approved"  gorm:"default:false;index"`
}

func (CommentModel) TableName() string { return "comments" }
