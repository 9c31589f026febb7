package models

// CategoryModel groups posts. Users subscribe to categories for new-post mail.
type CategoryModel struct {
	Base
	Name        string      `json:"name"  gorm:"uniqueIndex;not null"`
	Subscribers []UserModel `json:"-"     gorm:"many2many:category_subscribers;joinForeignKey:CategoryID;joinReferences:UserID"`

	Posts []PostModel `json:"posts,omitempty" gorm:"foreignKey:CategoryID"`
}

func (CategoryModel) TableName() string { return "categories" }
