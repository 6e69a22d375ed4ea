package widget

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

// MaxFileSize is the default per-file limit (10 MiB).
const MaxFileSize int64 = 10 << 20

// Rejection codes, matching the browser drop-zone's.
const (
	RejectInvalidType = "file-invalid-type"
	RejectTooLarge    = "file-too-large"
)

// File is one candidate upload.
type File struct {
	Name string
	// MediaType is the declared type and may be empty.
	MediaType string
	Data      []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 { return int64(len(f.Data)) }

// Rejection is a file the filter excluded from dispatch.
type Rejection struct {
	File File
	Code string
}

// Filter decides which files are dispatched. A file passes when its
// declared media type or its extension is accepted and it is no larger
// than MaxSize.
type Filter struct {
	// Accept maps a media type to the extensions that imply it.
	Accept  map[string][]string
	MaxSize int64
}

// DefaultFilter accepts JPEG, PNG, GIF, WebP and PDF files up to 10 MiB.
func DefaultFilter() Filter {
	return Filter{
		Accept: map[string][]string{
			"image/jpeg":      {".jpeg", ".jpg"},
			"image/png":       {".png"},
			"image/gif":       {".gif"},
			"image/webp":      {".webp"},
			"application/pdf": {".pdf"},
		},
		MaxSize: MaxFileSize,
	}
}

// Apply splits files into accepted and rejected, keeping input order.
func (f Filter) Apply(files []File) (accepted []File, rejected []Rejection) {
	for _, file := range files {
		if code := f.check(file); code != "" {
			rejected = append(rejected, Rejection{File: file, Code: code})
			continue
		}
		accepted = append(accepted, file)
	}
	return accepted, rejected
}

func (f Filter) check(file File) string {
	if !f.acceptsType(file) {
		return RejectInvalidType
	}
	if f.MaxSize > 0 && file.Size() > f.MaxSize {
		return RejectTooLarge
	}
	return ""
}

func (f Filter) acceptsType(file File) bool {
	if mt := baseMediaType(file.MediaType); mt != "" {
		if _, ok := f.Accept[mt]; ok {
			return true
		}
	}

	ext := strings.ToLower(filepath.Ext(file.Name))
	if ext == "" {
		return false
	}
	for _, exts := range f.Accept {
		for _, e := range exts {
			if e == ext {
				return true
			}
		}
	}
	return false
}

// AcceptAttr renders the filter as an <input accept> value.
func (f Filter) AcceptAttr() string {
	var parts []string
	for mt, exts := range f.Accept {
		parts = append(parts, mt)
		parts = append(parts, exts...)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

// detectMediaType fills in a media type from the file extension.
func detectMediaType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	return baseMediaType(mime.TypeByExtension(ext))
}

func baseMediaType(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return mt
}

// sanitizeFilename removes path separators and control bytes from a name
// before it is sent as the multipart filename.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	filename = strings.ReplaceAll(filename, "\x00", "")
	filename = strings.Trim(filename, " .")

	if len(filename) > 255 {
		ext := filepath.Ext(filename)
		nameWithoutExt := filename[:len(filename)-len(ext)]
		filename = nameWithoutExt[:255-len(ext)] + ext
	}

	if filename == "" {
		filename = "unnamed"
	}
	return filename
}
