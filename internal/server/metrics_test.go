package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mediadrop/internal/provider"
)

func TestMetrics_RecordUpload(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry(), "test")

	m.RecordUpload("cloudinary", uploadResultOK, 2048, 150*time.Millisecond)
	m.RecordUpload("cloudinary", uploadResultRejected, 99, 10*time.Millisecond)
	m.RecordUpload("cloudinary", uploadResultNoFile, 0, 0)

	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("cloudinary", uploadResultOK)); got != 1 {
		t.Errorf("ok uploads = %v", got)
	}
	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("cloudinary", uploadResultRejected)); got != 1 {
		t.Errorf("rejected uploads = %v", got)
	}
	if got := testutil.ToFloat64(m.uploadBytes); got != 2048 {
		t.Errorf("upload bytes = %v, only successful bytes count", got)
	}
	if got := testutil.CollectAndCount(m.uploadDuration); got != 1 {
		t.Errorf("duration series = %d", got)
	}
}

func TestMetrics_StatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 404: "4xx", 429: "4xx", 500: "5xx", 0: "unknown", 700: "unknown"}
	for code, want := range tests {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cb := provider.NewCircuitBreaker(1, time.Hour)
	fp := &fakeProvider{}
	s := newTestServer(t, provider.WithBreaker(fp, cb), func(c *Config) { c.Breaker = cb })

	body, ct := multipartBody(t, "file", "a.png", "image/png", []byte("png"))
	if rr := doUpload(t, s, body, ct); rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rr.Code)
	}
	_ = cb.Execute(func() error { return errors.New("boom") }, nil)

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d", rr.Code)
	}

	out := rr.Body.String()
	for _, want := range []string{
		`mediadrop_uploads_total{provider="fake",result="ok"} 1`,
		`mediadrop_upload_bytes_total 3`,
		`mediadrop_http_requests_total{code="2xx"} 1`,
		`mediadrop_breaker_state 1`,
		`mediadrop_info{version="test"} 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
