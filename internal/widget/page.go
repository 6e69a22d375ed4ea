package widget

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"sort"
	"strings"
)

//go:embed page.html.tmpl
var pageSource string

var pageTmpl = template.Must(template.New("page").Parse(pageSource))

// PageConfig configures the browser drop-zone page.
type PageConfig struct {
	Title    string
	Endpoint string
	Images   RemotePattern
	Filter   Filter
}

type pageScriptConfig struct {
	Endpoint string              `json:"endpoint"`
	MaxSize  int64               `json:"maxSize"`
	Accept   map[string][]string `json:"accept"`
	Images   struct {
		Protocol string `json:"protocol"`
		Hostname string `json:"hostname"`
		Pathname string `json:"pathname"`
	} `json:"images"`
	FailedMessage string `json:"failedMessage"`
}

// NewPage returns a handler serving the drop-zone page. The page runs the
// same per-file flow as Session in the browser.
func NewPage(cfg PageConfig) http.Handler {
	if cfg.Title == "" {
		cfg.Title = "File Upload"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "/api/upload"
	}
	if cfg.Filter.Accept == nil {
		cfg.Filter = DefaultFilter()
	}

	sc := pageScriptConfig{
		Endpoint:      cfg.Endpoint,
		MaxSize:       cfg.Filter.MaxSize,
		Accept:        cfg.Filter.Accept,
		FailedMessage: UploadFailedMessage,
	}
	sc.Images.Protocol = cfg.Images.Protocol
	sc.Images.Hostname = cfg.Images.Hostname
	sc.Images.Pathname = cfg.Images.Pathname

	data := struct {
		Title   string
		Accept  string
		Formats string
		MaxMiB  int64
		Config  pageScriptConfig
	}{
		Title:   cfg.Title,
		Accept:  cfg.Filter.AcceptAttr(),
		Formats: formatList(cfg.Filter),
		MaxMiB:  cfg.Filter.MaxSize >> 20,
		Config:  sc,
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		panic("widget: render page: " + err.Error())
	}
	body := buf.Bytes()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}

var formatNames = map[string]string{
	"image/jpeg":      "JPEG",
	"image/png":       "PNG",
	"image/gif":       "GIF",
	"image/webp":      "WEBP",
	"application/pdf": "PDF",
}

func formatList(f Filter) string {
	names := make([]string, 0, len(f.Accept))
	for mt := range f.Accept {
		if n, ok := formatNames[mt]; ok {
			names = append(names, n)
		} else {
			names = append(names, mt)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
