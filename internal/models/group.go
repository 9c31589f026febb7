package models

// Permission names checked by the role service.
const (
	PermPostAdd         = "post_add"
	PermPostEdit        = "post_edit"
	PermPostDelete      = "post_delete"
	PermCategoryAdd     = "category_add"
	PermCommentModerate = "comment_moderate"
	PermTaskManage      = "task_manage"
)

// Well-known group names.
const (
	GroupAuthors = "authors"
	GroupCommon  = "common"
	GroupEditors = "editors"
)

// GroupModel is a named role carrying a set of permissions.
type GroupModel struct {
	Base
	Name        string      `json:"name"        gorm:"uniqueIndex;not null"`
	Permissions StringArray `json:"permissions" gorm:"type:text"`
}

func (GroupModel) TableName() string { return "auth_groups" }

// Has reports whether the group grants perm.
func (g GroupModel) Has(perm string) bool {
	for _, p := range g.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}
