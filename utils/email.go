package utils

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

var layoutTemplate = template.Must(template.New("layout").Parse(`
  <div style="font-family: Arial, sans-serif; padding: 24px; color: #0f172a;">
    <h2 style="color:#0f172a">{{.Title}}</h2>
    <div style="line-height:1.6;font-size:16px;color:#1e293b">{{.Body}}</div>
    <p style="margin-top:32px;color:#94a3b8;font-size:12px;">
      © {{.Year}} SimpleAutomate · simpleautomate.co.uk
    </p>
  </div>
`))

// RenderEmailLayout wraps tenant-authored HTML in the product layout. The body
// is trusted HTML written by the tenant; the title is escaped.
func RenderEmailLayout(title, body string) string {
	var buf bytes.Buffer
	_ = layoutTemplate.Execute(&buf, struct {
		Title string
		Body  template.HTML
		Year  int
	}{
		Title: title,
		Body:  template.HTML(body),
		Year:  time.Now().Year(),
	})
	return buf.String()
}

// MergeContact is the contact data available to {{contact.*}} merge fields
type MergeContact struct {
	Name  string
	Email string
	Phone string
}

// RenderMergeFields replaces {{contact.firstName}}, {{contact.name}},
// {{contact.email}} and {{contact.phone}}. Unknown placeholders are left as is.
func RenderMergeFields(text string, contact MergeContact) string {
	firstName := strings.TrimSpace(contact.Name)
	if i := strings.IndexAny(firstName, " \t"); i > 0 {
		firstName = firstName[:i]
	}
	if firstName == "" {
		firstName = "there"
	}

	r := strings.NewReplacer(
		"{{contact.firstName}}", template.HTMLEscapeString(firstName),
		"{{contact.name}}", template.HTMLEscapeString(contact.Name),
		"{{contact.email}}", template.HTMLEscapeString(contact.Email),
		"{{contact.phone}}", template.HTMLEscapeString(contact.Phone),
	)
	return r.Replace(text)
}
