package models

import "time"

// UserModel is a registered account. Readers, commenters and authors are all users.
type UserModel struct {
	Base
	Username      string       `json:"username"        gorm:"uniqueIndex;not null"`
	Email         string       `json:"email"           gorm:"index"`
	FirstName     string       `json:"first_name"`
	LastName      string       `json:"last_name"`
	Password      string       `json:"-"               gorm:"not null"`
	LastLoginTime *time.Time   `json:"last_login_time"`
	LastLoginIP   string       `json:"last_login_ip"`
	Groups        []GroupModel `json:"groups,omitempty" gorm:"many2many:user_groups;joinForeignKey:UserID;joinReferences:GroupID"`
}

func (UserModel) TableName() string { return "users" }
