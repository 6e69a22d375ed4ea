package widget

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewPage(t *testing.T) {
	h := NewPage(PageConfig{
		Endpoint: "/api/upload",
		Images:   CloudinaryPattern("democloud"),
	})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rr.Body.String()
	for _, want := range []string{
		"Supported formats: GIF, JPEG, PDF, PNG, WEBP (max 10MB)",
		`"endpoint":"/api/upload"`,
		`"hostname":"res.cloudinary.com"`,
		`"maxSize":10485760`,
		UploadFailedMessage,
		"View PDF",
		`u.protocol === "https:" || u.protocol === "http:"`,
		"a.href = href;",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}
