package mail

import (
	"bytes"
	"html/template"
	"time"
)

const postPreviewTpl = `<!DOCTYPE html>
<html>
<head><meta http-equiv="Content-Type" content="text/html; charset=UTF-8" /></head>
<body style="font-family:sans-serif;background:#f5f5f5;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#fff;border-radius:8px;padding:24px">
  {{if .Heading}}<h2 style="color:#333">{{.Heading}}</h2>{{end}}
  <p style="font-size:14px;line-height:24px;color:#333">{{.Text}}</p>
  <p style="margin-top:24px">
    <a href="{{.Link}}" style="background:#0ea5e9;color:#fff;padding:8px 16px;text-decoration:none;border-radius:4px">Read more</a>
  </p>
  <p style="color:#999;font-size:12px">&copy;{{year}} {{.SiteName}}. This message was sent automatically, please do not reply.</p>
</div>
</body>
</html>`

// PostPreviewData fills the post preview template.
type PostPreviewData struct {
	Heading  string
	Text     string
	Link     string
	SiteName string
}

// RenderPostPreview renders the HTML body announcing a post or activity on it.
func RenderPostPreview(data PostPreviewData) (string, error) {
	return renderTemplate(postPreviewTpl, data)
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
