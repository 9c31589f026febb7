package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderBasic(t *testing.T) {
	html := Render("# Breaking\n\nSome **bold** news")
	assert.Contains(t, html, "<h1>Breaking</h1>")
	assert.Contains(t, html, "<strong>bold</strong>")
}

func TestRenderEmpty(t *testing.T) {
	assert.Empty(t, Render("   \n"))
}

func TestRenderDropsRawHTML(t *testing.T) {
	html := Render("<script>alert(1)</script>\n\ntext")
	assert.NotContains(t, html, "<script>")
	assert.Contains(t, html, "text")
}

func TestRenderImages(t *testing.T) {
	plain := Render("![a cat](https://img.example.com/cat.png)")
	assert.Contains(t, plain, `<img src="https://img.example.com/cat.png" alt="a cat" loading="lazy" />`)

	figure := Render("![!The skyline](https://img.example.com/city.png)")
	assert.Contains(t, figure, "<figure>")
	assert.Contains(t, figure, "<figcaption>The skyline</figcaption>")
	assert.NotContains(t, figure, "<p><figure>")
}
