package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"mediadrop/internal/provider"
)

// fakeProvider records every call and answers with fresh ids.
type fakeProvider struct {
	mu    sync.Mutex
	calls []fakeCall
	err   error
	seq   int
}

type fakeCall struct {
	file string
	opts provider.UploadOptions
}

func (p *fakeProvider) Name() string { return "fake" }
func (p *fakeProvider) Ping(ctx context.Context) error { return nil }

func (p *fakeProvider) Upload(ctx context.Context, file string, opts provider.UploadOptions) (*provider.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fakeCall{file: file, opts: opts})
	if p.err != nil {
		return nil, p.err
	}

	asset, err := provider.DecodeDataURI(file)
	if err != nil {
		return nil, err
	}
	if opts.MaxBytes > 0 && int64(len(asset.Data)) > opts.MaxBytes {
		return nil, errors.Wrapf(provider.ErrTooLarge, "fake: %d bytes", len(asset.Data))
	}
	format := provider.FormatOf(asset.MediaType)

	p.seq++
	id := fmt.Sprintf("%s/file%03d", opts.Folder, p.seq)
	return &provider.Result{
		URL:      "https://res.cloudinary.com/democloud/image/upload/v1/" + id + "." + format,
		PublicID: id,
		Format:   format,
	}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func newTestServer(t *testing.T, p provider.Provider, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Version:         "test",
		Provider:        p,
		Upload:          provider.DefaultOptions("my_uploads", 10<<20),
		MaxRequestBytes: 32 << 20,
		Logger:          NewLogger(io.Discard, LogLevelDebug, true),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s := New(cfg)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	pw, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	_, _ = pw.Write(data)
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func doUpload(t *testing.T, s *Server, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, uploadPath, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v (%q)", err, rr.Body.String())
	}
	return m
}

func TestUploadHandler_Success(t *testing.T) {
	fp := &fakeProvider{}
	s := newTestServer(t, fp)

	body, ct := multipartBody(t, "file", "photo.jpg", "image/jpeg", []byte("\xff\xd8\xff\xe0jpeg"))
	rr := doUpload(t, s, body, ct)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if !strings.HasPrefix(resp["url"], "https://") || resp["public_id"] == "" {
		t.Fatalf("unexpected response %v", resp)
	}

	if fp.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1", fp.callCount())
	}
	call := fp.calls[0]
	if !strings.HasPrefix(call.file, "data:image/jpeg;base64,") {
		t.Errorf("payload = %.40q", call.file)
	}
	if call.opts.Folder != "my_uploads" || call.opts.ResourceType != provider.ResourceTypeAuto || call.opts.MaxBytes != 10485760 {
		t.Errorf("options = %+v", call.opts)
	}
	if strings.Join(call.opts.AllowedFormats, ",") != "jpg,png,gif,webp,pdf" {
		t.Errorf("allowed formats = %v", call.opts.AllowedFormats)
	}
}

func TestUploadHandler_NoFile(t *testing.T) {
	textOnly := func() (io.Reader, string) {
		buf := &bytes.Buffer{}
		mw := multipart.NewWriter(buf)
		_ = mw.WriteField("note", "hello")
		_ = mw.Close()
		return buf, mw.FormDataContentType()
	}
	otherField := func() (io.Reader, string) {
		b, ct := multipartBody(t, "attachment", "a.png", "image/png", []byte("png"))
		return b, ct
	}

	tests := []struct {
		name string
		body func() (io.Reader, string)
	}{
		{name: "empty multipart", body: func() (io.Reader, string) {
			buf := &bytes.Buffer{}
			mw := multipart.NewWriter(buf)
			_ = mw.Close()
			return buf, mw.FormDataContentType()
		}},
		{name: "only text fields", body: textOnly},
		{name: "file under another name", body: otherField},
		{name: "json body", body: func() (io.Reader, string) {
			return strings.NewReader(`{"file":"x"}`), "application/json"
		}},
		{name: "no content type", body: func() (io.Reader, string) {
			return strings.NewReader("raw"), ""
		}},
		{name: "multipart without boundary", body: func() (io.Reader, string) {
			return strings.NewReader("raw"), "multipart/form-data"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProvider{}
			s := newTestServer(t, fp)

			body, ct := tt.body()
			rr := doUpload(t, s, body, ct)

			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != "No file provided" {
				t.Errorf("error = %q", got)
			}
			if fp.callCount() != 0 {
				t.Errorf("provider must not be called without a file")
			}
		})
	}
}

func TestUploadHandler_ProviderFailureIsGeneric(t *testing.T) {
	secret := "cloudinary: api_secret=hunter2 rejected by upstream"
	tests := []struct {
		name string
		err  error
	}{
		{name: "transient", err: errors.New(secret)},
		{name: "too large", err: errors.Wrap(provider.ErrTooLarge, secret)},
		{name: "format", err: errors.Wrap(provider.ErrFormatNotAllowed, secret)},
		{name: "circuit open", err: provider.ErrCircuitOpen},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			fp := &fakeProvider{err: tt.err}
			s := newTestServer(t, fp, func(c *Config) {
				c.Logger = NewLogger(&logs, LogLevelInfo, true)
			})

			body, ct := multipartBody(t, "file", "a.png", "image/png", []byte("png"))
			req := httptest.NewRequest(http.MethodPost, uploadPath, body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("X-Request-Id", "req-42")
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, req)

			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rr.Code)
			}
			if got := decodeBody(t, rr)["error"]; got != "Upload failed" {
				t.Errorf("error = %q", got)
			}
			if strings.Contains(rr.Body.String(), "hunter2") || strings.Contains(rr.Body.String(), "circuit") {
				t.Fatalf("provider detail leaked: %s", rr.Body.String())
			}
			if !strings.Contains(logs.String(), `"request_id":"req-42"`) {
				t.Errorf("failure not logged with request id:\n%s", logs.String())
			}
			if !strings.Contains(logs.String(), tt.err.Error()) {
				t.Errorf("failure detail missing from logs:\n%s", logs.String())
			}
		})
	}
}

func TestUploadHandler_SizeRejectedByProvider(t *testing.T) {
	fp := &fakeProvider{}
	s := newTestServer(t, fp)

	body, ct := multipartBody(t, "file", "big.jpg", "image/jpeg", bytes.Repeat([]byte{0xff}, 15<<20))
	rr := doUpload(t, s, body, ct)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if fp.callCount() != 1 {
		t.Fatalf("the endpoint must delegate size enforcement to the provider, calls = %d", fp.callCount())
	}
}

func TestUploadHandler_RequestBodyCap(t *testing.T) {
	fp := &fakeProvider{}
	s := newTestServer(t, fp, func(c *Config) { c.MaxRequestBytes = 1024 })

	body, ct := multipartBody(t, "file", "a.png", "image/png", bytes.Repeat([]byte("x"), 4096))
	rr := doUpload(t, s, body, ct)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if got := decodeBody(t, rr)["error"]; got != "Upload failed" {
		t.Errorf("error = %q", got)
	}
	if fp.callCount() != 0 {
		t.Errorf("provider called for an over-cap body")
	}
}

func TestUploadHandler_NoDeduplication(t *testing.T) {
	fp := &fakeProvider{}
	s := newTestServer(t, fp)

	ids := map[string]bool{}
	for i := 0; i < 2; i++ {
		body, ct := multipartBody(t, "file", "same.png", "image/png", []byte("identical bytes"))
		rr := doUpload(t, s, body, ct)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		ids[decodeBody(t, rr)["public_id"]] = true
	}
	if len(ids) != 2 {
		t.Fatalf("same file uploaded twice should yield two ids, got %v", ids)
	}
}

func TestUploadHandler_MethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeProvider{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, uploadPath, nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestUploadHandler_ClientDisconnectCancelsProvider(t *testing.T) {
	seen := make(chan error, 1)
	p := providerFunc(func(ctx context.Context, file string, opts provider.UploadOptions) (*provider.Result, error) {
		<-ctx.Done()
		seen <- ctx.Err()
		return nil, ctx.Err()
	})
	s := newTestServer(t, p)

	body, ct := multipartBody(t, "file", "a.png", "image/png", []byte("png"))
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, uploadPath, body).WithContext(ctx)
	req.Header.Set("Content-Type", ct)

	done := make(chan struct{})
	go func() {
		s.Handler().ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()
	cancel()
	<-done

	if err := <-seen; !errors.Is(err, context.Canceled) {
		t.Fatalf("provider saw %v, want context.Canceled", err)
	}
}

type providerFunc func(ctx context.Context, file string, opts provider.UploadOptions) (*provider.Result, error)

func (f providerFunc) Name() string { return "func" }
func (f providerFunc) Ping(ctx context.Context) error { return nil }
func (f providerFunc) Upload(ctx context.Context, file string, opts provider.UploadOptions) (*provider.Result, error) {
	return f(ctx, file, opts)
}

func TestPartMediaType(t *testing.T) {
	tests := []struct {
		declared, filename, want string
	}{
		{"image/png", "x.bin", "image/png"},
		{"image/jpeg; charset=binary", "", "image/jpeg"},
		{"", "doc.pdf", "application/pdf"},
		{"", "PHOTO.JPG", "image/jpeg"},
		{"", "noext", "application/octet-stream"},
		{"not a type", "a.gif", "image/gif"},
	}
	for _, tt := range tests {
		if got := partMediaType(tt.declared, tt.filename); got != tt.want {
			t.Errorf("partMediaType(%q, %q) = %q, want %q", tt.declared, tt.filename, got, tt.want)
		}
	}
}
