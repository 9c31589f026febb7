package comment

import (
	"errors"
	"time"
)

// CreateCommentDTO is the comment form. ParentID makes the comment a reply.
type CreateCommentDTO struct {
	Text     string  `json:"text"      form:"text"      binding:"required,notblank,max=5000"`
	ParentID *string `json:"parent_id" form:"parent_id" binding:"omitempty,max=36"`
}

var (
	ErrPostNotFound    = errors.New("post not found")
	ErrParentNotFound  = errors.New("parent comment not found")
	ErrParentOtherPost = errors.New("parent comment belongs to another post")
)

const (
	msgDeleted  = "comment deleted"
	msgApproved = "comment approved"
)

type postRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type commentResponse struct {
	ID       string    `json:"id"`
	PostID   string    `json:"post_id"`
	Post     *postRef  `json:"post,omitempty"`
	UserID   string    `json:"user_id"`
	ParentID *string   `json:"parent_id"`
	Text     string    `json:"text"`
	Approved bool      `json:"approved"`
	Created  time.Time `json:"created"`
}
