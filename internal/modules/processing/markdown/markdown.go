// Package markdown turns post bodies into HTML for the detail view.
package markdown

import (
	"bytes"
	"html/template"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

// Raw HTML in post bodies is not passed through.
var engine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var (
	imageTagRegex        = regexp.MustCompile(`(?is)<img\s+[^>]*>`)
	imageAttrRegex       = regexp.MustCompile(`([a-zA-Z:_-]+)\s*=\s*"([^"]*)"`)
	figureParagraphRegex = regexp.MustCompile(`(?is)<p>\s*(<figure>[\s\S]*?</figure>)\s*</p>`)
)

// Render converts markdown to HTML. On a conversion error the escaped source
// is returned.
func Render(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	var out bytes.Buffer
	if err := engine.Convert([]byte(text), &out); err != nil {
		return template.HTMLEscapeString(text)
	}
	return rewriteImages(out.String())
}

// rewriteImages lazy-loads images and turns an alt text starting with "!"
// into a figure caption.
func rewriteImages(html string) string {
	processed := imageTagRegex.ReplaceAllStringFunc(html, func(tag string) string {
		attrs := parseImageAttrs(tag)
		src := strings.TrimSpace(attrs["src"])
		if src == "" {
			return tag
		}
		escapedSrc := template.HTMLEscapeString(src)

		alt := strings.TrimSpace(attrs["alt"])
		if strings.HasPrefix(alt, "!") {
			caption := strings.TrimSpace(strings.TrimPrefix(alt, "!"))
			if caption == "" {
				caption = strings.TrimSpace(attrs["title"])
			}
			return `<figure><img src="` + escapedSrc + `" loading="lazy" /><figcaption>` +
				template.HTMLEscapeString(caption) + `</figcaption></figure>`
		}
		return `<img src="` + escapedSrc + `" alt="` + template.HTMLEscapeString(alt) + `" loading="lazy" />`
	})
	return figureParagraphRegex.ReplaceAllString(processed, "$1")
}

func parseImageAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, item := range imageAttrRegex.FindAllStringSubmatch(tag, -1) {
		key := strings.ToLower(strings.TrimSpace(item[1]))
		if key == "" {
			continue
		}
		attrs[key] = item[2]
	}
	return attrs
}
