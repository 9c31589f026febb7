// Package feed publishes the newest posts as RSS 2.0 and Atom documents.
package feed

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/feeds"
	"github.com/newsroom/core/internal/models"
	"github.com/newsroom/core/internal/modules/processing/markdown"
	"github.com/newsroom/core/internal/pkg/response"
	"gorm.io/gorm"
)

// Size is the number of posts in a feed.
const Size = 20

type Site struct {
	Title   string
	BaseURL string
}

type Handler struct {
	db   *gorm.DB
	site Site
}

func NewHandler(db *gorm.DB, site Site) *Handler {
	site.BaseURL = strings.TrimRight(site.BaseURL, "/")
	return &Handler{db: db, site: site}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/feed.xml", h.rss)
	rg.GET("/atom.xml", h.atom)
}

// build loads the newest published posts, optionally for one category, into
// a feed document.
func (h *Handler) build(ctx context.Context, categoryID string) (*feeds.Feed, error) {
	tx := h.db.WithContext(ctx).
		Preload("Author.User").
		Where("published_at <= ?", time.Now()).
		Order("published_at DESC").
		Limit(Size)
	if categoryID != "" {
		tx = tx.Where("category_id = ?", categoryID)
	}
	var posts []models.PostModel
	if err := tx.Find(&posts).Error; err != nil {
		return nil, err
	}

	home := h.site.BaseURL + "/news/"
	f := &feeds.Feed{
		Title:       h.site.Title,
		Link:        &feeds.Link{Href: home},
		Id:          home,
		Description: "Latest posts from " + h.site.Title,
		Created:     time.Now(),
		Items:       make([]*feeds.Item, len(posts)),
	}
	if len(posts) > 0 {
		f.Updated = posts[0].PublishedAt
	}
	for i, p := range posts {
		html := markdown.Render(p.Text)
		link := home + p.ID
		it := &feeds.Item{
			Title:       p.Title,
			Link:        &feeds.Link{Href: link},
			Id:          link,
			Description: html,
			Content:     html,
			Created:     p.PublishedAt,
		}
		if p.Author != nil && p.Author.User != nil {
			it.Author = &feeds.Author{Name: p.Author.User.Username}
		}
		f.Items[i] = it
	}
	return f, nil
}

// rss GET /feed.xml?category=
func (h *Handler) rss(c *gin.Context) {
	h.render(c, "application/rss+xml; charset=utf-8", (*feeds.Feed).ToRss)
}

// atom GET /atom.xml?category=
func (h *Handler) atom(c *gin.Context) {
	h.render(c, "application/atom+xml; charset=utf-8", (*feeds.Feed).ToAtom)
}

func (h *Handler) render(c *gin.Context, contentType string, encode func(*feeds.Feed) (string, error)) {
	f, err := h.build(c.Request.Context(), c.Query("category"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	body, err := encode(f)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, []byte(body))
}
