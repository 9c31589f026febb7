package comment

import (
	"strings"

	"github.com/newsroom/core/internal/models"
)

// normalizeParentID maps a blank parent to nil so form posts with an empty
// parent field create top-level comments.
func normalizeParentID(raw *string) *string {
	if raw == nil {
		return nil
	}
	v := strings.TrimSpace(*raw)
	if v == "" {
		return nil
	}
	return &v
}

func toResponse(c *models.CommentModel) commentResponse {
	r := commentResponse{
		ID:       c.ID,
		PostID:   c.PostID,
		UserID:   c.UserID,
		ParentID: c.ParentID,
		Text:     c.Text,
		Approved: c.Approved,
		Created:  c.CreatedAt,
	}
	if c.Post != nil {
		r.Post = &postRef{ID: c.Post.ID, Title: c.Post.Title}
	}
	return r
}

func toResponses(list []models.CommentModel) []commentResponse {
	out := make([]commentResponse, len(list))
	for i := range list {
		out[i] = toResponse(&list[i])
	}
	return out
}
