package widget

import (
	"html/template"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"
)

// RemotePattern describes where displayable images may come from.
// Pathname may end in "/**" to match any sub path.
type RemotePattern struct {
	Protocol string
	// Hostname may include a port.
	Hostname string
	Pathname string
}

// CloudinaryPattern is the pattern for images served from one Cloudinary
// cloud.
func CloudinaryPattern(cloudName string) RemotePattern {
	return RemotePattern{
		Protocol: "https",
		Hostname: "res.cloudinary.com",
		Pathname: "/" + cloudName + "/**",
	}
}

// Origin returns scheme://host, or "" when no host is configured.
func (p RemotePattern) Origin() string {
	if p.Hostname == "" {
		return ""
	}
	scheme := p.Protocol
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + p.Hostname
}

// Match reports whether rawURL may be rendered as an image.
func (p RemotePattern) Match(rawURL string) bool {
	if p.Hostname == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() {
		return false
	}
	if p.Protocol != "" && !strings.EqualFold(u.Scheme, p.Protocol) {
		return false
	}
	if !strings.EqualFold(u.Host, p.Hostname) {
		return false
	}
	return matchPath(p.Pathname, u.EscapedPath())
}

func matchPath(pattern, p string) bool {
	switch {
	case pattern == "" || pattern == "/**":
		return true
	case strings.HasSuffix(pattern, "/**"):
		prefix := strings.TrimSuffix(pattern, "**")
		return strings.HasPrefix(p, prefix) && path.Clean(p) == p && len(p) > len(prefix)
	default:
		ok, err := path.Match(pattern, p)
		return err == nil && ok
	}
}

// linkable reports whether rawURL is an absolute http(s) URL.
func linkable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Host != "" && (strings.EqualFold(u.Scheme, "https") || strings.EqualFold(u.Scheme, "http"))
}

// IsPDF reports whether the URL path ends in a PDF extension.
func IsPDF(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	return strings.HasSuffix(strings.ToLower(p), ".pdf")
}

// Item kinds produced by the renderer.
const (
	KindPDF         = "pdf"
	KindImage       = "image"
	KindPlaceholder = "placeholder"
)

// Item is one rendered result.
type Item struct {
	Kind string
	URL  string
	Alt  string
}

// Renderer turns session results into HTML.
type Renderer struct {
	Images RemotePattern
}

// Items classifies results in order.
func (r Renderer) Items(results []Result) []Item {
	items := make([]Item, 0, len(results))
	for i, res := range results {
		it := Item{URL: res.URL, Alt: "Uploaded file " + strconv.Itoa(i+1)}
		switch {
		case !linkable(res.URL):
			it.Kind = KindPlaceholder
		case IsPDF(res.URL):
			it.Kind = KindPDF
		case r.Images.Match(res.URL):
			it.Kind = KindImage
		default:
			it.Kind = KindPlaceholder
		}
		items = append(items, it)
	}
	return items
}

// Render writes the session view as an HTML fragment.
func (r Renderer) Render(w io.Writer, v View) error {
	return resultsTmpl.Execute(w, struct {
		Uploading bool
		Error     string
		Items     []Item
	}{
		Uploading: v.Uploading,
		Error:     v.Error,
		Items:     r.Items(v.Results),
	})
}

// RenderDocument writes a standalone HTML page around Render's output.
func (r Renderer) RenderDocument(w io.Writer, title string, v View) error {
	var body strings.Builder
	if err := r.Render(&body, v); err != nil {
		return err
	}
	return documentTmpl.Execute(w, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
}

var resultsTmpl = template.Must(template.New("results").Parse(`
{{- if .Uploading}}<div class="status">Uploading...</div>
{{end -}}
{{- if .Error}}<div class="error">{{.Error}}</div>
{{end -}}
{{- if .Items}}<section class="results">
<h3>Uploaded Files</h3>
<div class="grid">
{{- range .Items}}
<div class="cell">
{{- if eq .Kind "pdf"}}<a href="{{.URL}}" target="_blank" rel="noopener noreferrer">View PDF</a>
{{- else if eq .Kind "image"}}<img src="{{.URL}}" alt="{{.Alt}}" loading="lazy">
{{- else}}<div class="placeholder" title="{{.Alt}}">Preview unavailable</div>
{{- end}}</div>
{{- end}}
</div>
</section>
{{end -}}
`))

var documentTmpl = template.Must(template.New("document").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;background:#111827;color:#f3f4f6;padding:2rem}
.grid{display:grid;grid-template-columns:repeat(3,1fr);gap:1rem}
.cell{aspect-ratio:1;display:flex;align-items:center;justify-content:center;background:#1f2937;border-radius:.25rem;overflow:hidden}
.cell img{width:100%;height:100%;object-fit:cover}
.error{color:#f87171}
a{color:#60a5fa}
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
</body>
</html>
`))
