package provider

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// putFunc writes one object to a bucket-style backend.
type putFunc func(ctx context.Context, key, contentType string, data []byte) error

// objectUpload is the upload path shared by the bucket backends: decode,
// enforce options, store under <folder>/<uuid>.<format>, build the public URL.
func objectUpload(ctx context.Context, file string, opts UploadOptions, baseURL string, put putFunc) (*Result, error) {
	asset, err := DecodeDataURI(file)
	if err != nil {
		return nil, err
	}

	format, err := checkAsset(asset, opts)
	if err != nil {
		return nil, err
	}

	publicID := newPublicID(opts.Folder)
	key := publicID
	if format != "" {
		key += "." + format
	}

	if err := put(ctx, key, MediaTypeOf(format), asset.Data); err != nil {
		return nil, err
	}

	return &Result{
		URL:          joinURL(baseURL, key),
		PublicID:     publicID,
		Format:       format,
		ResourceType: ResolveResourceType(opts.ResourceType, format),
		Bytes:        int64(len(asset.Data)),
	}, nil
}

// newPublicID returns a fresh identifier; identical payloads never share one.
func newPublicID(folder string) string {
	id := uuid.NewString()
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return id
	}
	return folder + "/" + id
}

func joinURL(base, key string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return strings.TrimRight(base, "/") + "/" + key
	}
	u.Path = path.Join("/", u.Path, key)
	return u.String()
}

// normaliseEndpoint accepts "host:port" or "http(s)://host:port".
func normaliseEndpoint(raw string) (endpoint string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errors.New("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", false, errors.Wrap(err, "parse endpoint")
		}
		if u.Host == "" {
			return "", false, errors.New("invalid endpoint")
		}
		if u.Path != "" && u.Path != "/" {
			return "", false, errors.New("endpoint must not contain a path")
		}
		return u.Host, u.Scheme == "https", nil
	}

	// No scheme: host:port, insecure by default for local MinIO.
	return raw, false, nil
}
