package post

import (
	"errors"
	"strings"
	"time"

	"github.com/newsroom/core/internal/models"
)

var (
	ErrCategoryNotFound = errors.New("category does not exist")
	ErrInvalidDate      = errors.New("must be a date like 2006-01-02")
)

// PostForm is the request body for creating a post. The publish time is
// always the time of creation.
type PostForm struct {
	Title      string `json:"title"       form:"title"       binding:"required,notblank,max=128"`
	Text       string `json:"text"        form:"text"        binding:"required,notblank"`
	CategoryID string `json:"category_id" form:"category_id" binding:"required,notblank"`
}

// UpdatePostDTO is the request body for updating a post (all fields optional).
type UpdatePostDTO struct {
	Title       *string    `json:"title"        form:"title"        binding:"omitempty,notblank,max=128"`
	Text        *string    `json:"text"         form:"text"         binding:"omitempty,notblank"`
	CategoryID  *string    `json:"category_id"  form:"category_id"  binding:"omitempty,notblank"`
	PublishedAt *time.Time `json:"published_at" form:"published_at"`
}

// ListQuery holds the listing filter. Author and Category match either the
// id or the name (username for authors).
type ListQuery struct {
	Title    string `form:"title"    json:"title"`
	Author   string `form:"author"   json:"author"`
	Category string `form:"category" json:"category"`
	After    string `form:"after"    json:"after"`
}

var afterLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"}

// AfterTime parses After. An empty value yields nil.
func (q ListQuery) AfterTime() (*time.Time, error) {
	raw := strings.TrimSpace(q.After)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range afterLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, ErrInvalidDate
}

type categoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type authorRef struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// postResponse is the API response shape for a post.
type postResponse struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Text        string       `json:"text"`
	Preview     string       `json:"preview"`
	PublishedAt time.Time    `json:"published_at"`
	Rating      int          `json:"rating"`
	Category    *categoryRef `json:"category"`
	Author      *authorRef   `json:"author"`
	Created     time.Time    `json:"created"`
	Modified    *time.Time   `json:"modified"`
}

type commentItem struct {
	ID       string    `json:"id"`
	ParentID *string   `json:"parent_id"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Text     string    `json:"text"`
	Created  time.Time `json:"created"`
}

func toResponse(p *models.PostModel) postResponse {
	var modified *time.Time
	if !p.UpdatedAt.IsZero() {
		modifiedAt := p.UpdatedAt
		modified = &modifiedAt
	}
	resp := postResponse{
		ID:          p.ID,
		Title:       p.Title,
		Text:        p.Text,
		Preview:     p.Preview(),
		PublishedAt: p.PublishedAt,
		Rating:      p.Rating,
		Created:     p.CreatedAt,
		Modified:    modified,
	}
	if p.Category != nil {
		resp.Category = &categoryRef{ID: p.Category.ID, Name: p.Category.Name}
	}
	if p.Author != nil {
		resp.Author = &authorRef{ID: p.Author.ID, UserID: p.Author.UserID}
		if p.Author.User != nil {
			resp.Author.Username = p.Author.User.Username
		}
	}
	return resp
}

func toResponses(posts []models.PostModel) []postResponse {
	items := make([]postResponse, len(posts))
	for i := range posts {
		items[i] = toResponse(&posts[i])
	}
	return items
}

func toCommentItems(comments []models.CommentModel) []commentItem {
	items := make([]commentItem, len(comments))
	for i, cm := range comments {
		items[i] = commentItem{
			ID:       cm.ID,
			ParentID: cm.ParentID,
			UserID:   cm.UserID,
			Text:     cm.Text,
			Created:  cm.CreatedAt,
		}
		if cm.User != nil {
			items[i].Username = cm.User.Username
		}
	}
	return items
}
