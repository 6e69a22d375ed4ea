package provider

import (
	"context"

	"github.com/pkg/errors"
)

// Resource types understood by every backend.
const (
	ResourceTypeAuto  = "auto"
	ResourceTypeImage = "image"
	ResourceTypeRaw   = "raw"
)

var (
	// ErrFormatNotAllowed is returned when the payload's format is outside
	// UploadOptions.AllowedFormats.
	ErrFormatNotAllowed = errors.New("format not allowed")

	// ErrTooLarge is returned when the decoded payload exceeds
	// UploadOptions.MaxBytes.
	ErrTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidDataURI is returned when the file argument is not a base64
	// data URI.
	ErrInvalidDataURI = errors.New("invalid data uri")

	// ErrAPI is an error reported by the backend in a well-formed response,
	// such as bad credentials or a missing upload preset.
	ErrAPI = errors.New("provider api error")
)

// UploadOptions is the fixed option set the endpoint sends with every upload.
type UploadOptions struct {
	Folder         string
	ResourceType   string
	AllowedFormats []string
	MaxBytes       int64
}

// DefaultAllowedFormats is the format allow-list used by the upload endpoint.
var DefaultAllowedFormats = []string{"jpg", "png", "gif", "webp", "pdf"}

// DefaultOptions returns the endpoint's options for the given folder and size cap.
func DefaultOptions(folder string, maxBytes int64) UploadOptions {
	formats := make([]string, len(DefaultAllowedFormats))
	copy(formats, DefaultAllowedFormats)
	return UploadOptions{
		Folder:         folder,
		ResourceType:   ResourceTypeAuto,
		AllowedFormats: formats,
		MaxBytes:       maxBytes,
	}
}

// Result is what a provider returns for a stored upload.
type Result struct {
	URL          string
	PublicID     string
	Format       string
	ResourceType string
	Bytes        int64
}

// Provider is a media host that accepts inline data URIs.
type Provider interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Upload stores file, a data URI, and returns its public location.
	Upload(ctx context.Context, file string, opts UploadOptions) (*Result, error)

	// Ping checks that the backend is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

// IsRejection reports whether err is a content rejection (format or size)
// rather than a backend failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrFormatNotAllowed) || errors.Is(err, ErrTooLarge)
}
