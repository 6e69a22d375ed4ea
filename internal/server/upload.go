package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"mediadrop/internal/provider"
)

const (
	uploadPath = "/api/upload"
	fileField  = "file"
)

// Client-facing messages. Provider detail is only ever logged.
const (
	msgNoFile       = "No file provided"
	msgUploadFailed = "Upload failed"
)

// errNoFile means the request carried no "file" part.
var errNoFile = errors.New("no file part")

// uploadResp is the JSON response returned after a successful upload.
type uploadResp struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id"`
}

// filePart is one multipart file read fully into memory.
type filePart struct {
	filename  string
	mediaType string
	data      []byte
}

// uploadHandler handles POST /api/upload. It reads the "file" part,
// encodes it as a base64 data URI and makes exactly one provider call with
// the configured upload options. Type and size limits are enforced by the
// provider, never here.
func (s *Server) uploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := s.log.ForRequest(r.Context())
		providerName := s.cfg.Provider.Name()

		if s.cfg.MaxRequestBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
		}

		part, err := readFilePart(r)
		if errors.Is(err, errNoFile) {
			s.metrics.RecordUpload(providerName, uploadResultNoFile, 0, 0)
			writeError(w, http.StatusBadRequest, msgNoFile)
			return
		}
		if err != nil {
			log.Error("read upload failed", map[string]any{"provider": providerName}, err)
			s.metrics.RecordUpload(providerName, uploadResultError, 0, 0)
			writeError(w, http.StatusInternalServerError, msgUploadFailed)
			return
		}

		ctx := r.Context()
		if s.cfg.ProviderTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderTimeout)
			defer cancel()
		}

		start := time.Now()
		res, err := s.forward(ctx, part)
		elapsed := time.Since(start)

		if err != nil {
			result := uploadResultError
			if provider.IsRejection(err) {
				result = uploadResultRejected
			}
			s.metrics.RecordUpload(providerName, result, int64(len(part.data)), elapsed)
			log.Error("provider upload failed", map[string]any{
				"provider":   providerName,
				"filename":   part.filename,
				"media_type": part.mediaType,
				"size":       len(part.data),
				"ms":         elapsed.Milliseconds(),
			}, err)
			writeError(w, http.StatusInternalServerError, msgUploadFailed)
			return
		}

		s.metrics.RecordUpload(providerName, uploadResultOK, int64(len(part.data)), elapsed)
		log.Info("upload stored", map[string]any{
			"provider":  providerName,
			"public_id": res.PublicID,
			"size":      len(part.data),
			"ms":        elapsed.Milliseconds(),
		})

		writeJSON(w, http.StatusOK, uploadResp{
			URL:      res.URL,
			PublicID: res.PublicID,
		})
	}
}

// forward makes the single provider call for part.
func (s *Server) forward(ctx context.Context, part *filePart) (*provider.Result, error) {
	ctx, span := startProviderSpan(ctx, s.cfg.Provider.Name(), part.mediaType, len(part.data))

	file := provider.EncodeDataURI(part.mediaType, part.data)
	res, err := s.cfg.Provider.Upload(ctx, file, s.cfg.Upload)

	endSpan(span, err)
	return res, err
}

// readFilePart returns the first multipart part named "file". A body that
// is not multipart, or that ends before such a part, yields errNoFile.
func readFilePart(r *http.Request) (*filePart, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFile
		}
		if err != nil {
			return nil, err
		}

		if p.FormName() != fileField {
			_ = p.Close()
			continue
		}

		data, err := io.ReadAll(p)
		_ = p.Close()
		if err != nil {
			return nil, err
		}

		return &filePart{
			filename:  p.FileName(),
			mediaType: partMediaType(p.Header.Get("Content-Type"), p.FileName()),
			data:      data,
		}, nil
	}
}

// partMediaType prefers the declared part type and falls back to the
// filename extension.
func partMediaType(declared, filename string) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil {
			return mt
		}
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if parsed, _, err := mime.ParseMediaType(mt); err == nil {
				return parsed
			}
		}
	}
	return "application/octet-stream"
}
