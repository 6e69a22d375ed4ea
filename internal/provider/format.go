package provider

import (
	"mime"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

var formatByMediaType = map[string]string{
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/gif":       "gif",
	"image/webp":      "webp",
	"application/pdf": "pdf",
}

var imageFormats = map[string]bool{
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// FormatOf returns the short format name for a media type, or "" when the
// type is not one the backends know about. Parameters such as charset are
// ignored.
func FormatOf(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(mediaType))
	}
	return formatByMediaType[mt]
}

// SniffFormat detects the format from the payload itself. The declared media
// type is never consulted, so a renamed executable cannot pass as an image.
func SniffFormat(data []byte) string {
	return FormatOf(http.DetectContentType(data))
}

// ResolveResourceType maps "auto" (or empty) to image or raw.
func ResolveResourceType(resourceType, format string) string {
	if resourceType != "" && resourceType != ResourceTypeAuto {
		return resourceType
	}
	if imageFormats[format] {
		return ResourceTypeImage
	}
	return ResourceTypeRaw
}

// MediaTypeOf returns the canonical media type for a format.
func MediaTypeOf(format string) string {
	switch format {
	case "jpg":
		return "image/jpeg"
	case "pdf":
		return "application/pdf"
	case "":
		return defaultMediaType
	default:
		return "image/" + format
	}
}

// checkAsset enforces MaxBytes and AllowedFormats and returns the sniffed format.
func checkAsset(a *Asset, opts UploadOptions) (string, error) {
	if opts.MaxBytes > 0 && int64(len(a.Data)) > opts.MaxBytes {
		return "", errors.Wrapf(ErrTooLarge, "%d bytes exceeds %d", len(a.Data), opts.MaxBytes)
	}

	format := SniffFormat(a.Data)
	if len(opts.AllowedFormats) == 0 {
		return format, nil
	}
	for _, f := range opts.AllowedFormats {
		if f == format && format != "" {
			return format, nil
		}
	}
	return "", errors.Wrapf(ErrFormatNotAllowed, "detected %q, declared %q", format, a.MediaType)
}
