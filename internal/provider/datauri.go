package provider

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

const defaultMediaType = "application/octet-stream"

// Asset is a decoded data URI.
type Asset struct {
	MediaType string
	Data      []byte
}

// EncodeDataURI builds "data:<mediaType>;base64,<payload>".
func EncodeDataURI(mediaType string, data []byte) string {
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "" {
		mediaType = defaultMediaType
	}

	var sb strings.Builder
	sb.Grow(len("data:;base64,") + len(mediaType) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:")
	sb.WriteString(mediaType)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}

// DecodeDataURI parses a base64 data URI. Only the base64 form is accepted;
// percent-encoded data URIs are rejected.
func DecodeDataURI(s string) (*Asset, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, errors.Wrap(ErrInvalidDataURI, "missing data: scheme")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errors.Wrap(ErrInvalidDataURI, "missing payload separator")
	}

	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, errors.Wrap(ErrInvalidDataURI, "payload is not base64")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDataURI, "decode payload: %v", err)
	}

	if mediaType == "" {
		mediaType = defaultMediaType
	}
	return &Asset{MediaType: mediaType, Data: data}, nil
}
