package widget

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/pkg/errors"
)

// Result is one stored upload as returned by the endpoint.
type Result struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// Uploader sends one file and returns where it was stored.
type Uploader interface {
	Upload(ctx context.Context, f File) (Result, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, f File) (Result, error)

func (fn UploaderFunc) Upload(ctx context.Context, f File) (Result, error) {
	return fn(ctx, f)
}

// StatusError is a non-2xx endpoint response.
type StatusError struct {
	StatusCode int
	// Message is the endpoint's "error" field, if any.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upload endpoint returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upload endpoint returned %d", e.StatusCode)
}

// Client posts files to an upload endpoint as multipart/form-data with a
// single "file" field.
type Client struct {
	Endpoint   string
	HTTPClient *http.Client
}

// NewClient returns a Client for endpoint, e.g.
// "http://localhost:8080/api/upload".
func NewClient(endpoint string) *Client {
	return &Client{
		Endpoint:   endpoint,
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload makes exactly one request for f.
func (c *Client) Upload(ctx context.Context, f File) (Result, error) {
	body, contentType, err := encodeMultipart(f)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, body)
	if err != nil {
		return Result{}, errors.Wrap(err, "build upload request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return Result{}, errors.Wrap(err, "upload request")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, errors.Wrap(err, "read upload response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Message: e.Error}
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, errors.Wrap(err, "decode upload response")
	}
	if res.URL == "" {
		return Result{}, errors.New("upload response has no url")
	}
	return res, nil
}

func encodeMultipart(f File) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	mediaType := baseMediaType(f.MediaType)
	if mediaType == "" {
		mediaType = detectMediaType(f.Name)
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": sanitizeFilename(f.Name),
	}))
	h.Set("Content-Type", mediaType)

	pw, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", errors.Wrap(err, "create file part")
	}
	if _, err := pw.Write(f.Data); err != nil {
		return nil, "", errors.Wrap(err, "write file part")
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart writer")
	}
	return buf, mw.FormDataContentType(), nil
}
