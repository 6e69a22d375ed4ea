// Package config loads mediadrop settings from MDROP_* environment
// variables.
//
// Defaults come from struct tags (go-defaults) and validation is done once
// at startup so a bad deployment fails fast with every problem listed.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mcuadros/go-defaults"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "MDROP_"

// Provider names accepted by MDROP_PROVIDER.
const (
	ProviderCloudinary = "cloudinary"
	ProviderMinio      = "minio"
	ProviderS3         = "s3"
)

// Config holds the process configuration.
type Config struct {
	Addr     string `env:"ADDR" default:":8080" validate:"required"`
	Provider string `env:"PROVIDER" default:"cloudinary" validate:"oneof=cloudinary minio s3"`

	// CloudinaryURL falls back to the SDK's standard CLOUDINARY_URL.
	CloudinaryURL string `env:"CLOUDINARY_URL" validate:"required_if=Provider cloudinary"`

	S3Endpoint    string `env:"S3_ENDPOINT" validate:"required_if=Provider minio"`
	S3AccessKey   string `env:"S3_ACCESS_KEY" validate:"required_unless=Provider cloudinary"`
	S3SecretKey   string `env:"S3_SECRET_KEY" validate:"required_unless=Provider cloudinary"`
	S3Region      string `env:"S3_REGION" default:"us-east-1"`
	Bucket        string `env:"BUCKET" validate:"required_unless=Provider cloudinary"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" validate:"omitempty,url"`

	UploadFolder    string        `env:"UPLOAD_FOLDER" default:"my_uploads" validate:"required"`
	MaxUploadBytes  int64         `env:"MAX_UPLOAD_BYTES" default:"10485760" validate:"gt=0"`
	MaxRequestBytes int64         `env:"MAX_REQUEST_BYTES" default:"33554432" validate:"gtefield=MaxUploadBytes"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" validate:"gte=0"`

	ImageHost       string `env:"IMAGE_HOST"`
	ImagePathPrefix string `env:"IMAGE_PATH_PREFIX"`

	RateLimit       int           `env:"RATE_LIMIT" default:"60" validate:"gte=0"`
	BreakerFailures uint32        `env:"BREAKER_FAILURES" default:"5" validate:"gte=1"`
	BreakerTimeout  time.Duration `env:"BREAKER_TIMEOUT" default:"30s" validate:"gt=0"`

	LogLevel  string `env:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" default:"console" validate:"oneof=console json"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := new(Config)
	defaults.SetDefaults(cfg)

	v := NewConfigValidator()
	v.readEnv(cfg, getenv)
	if cfg.CloudinaryURL == "" {
		cfg.CloudinaryURL = strings.TrimSpace(getenv("CLOUDINARY_URL"))
	}
	if v.HasErrors() {
		return nil, v
	}

	v.ValidateStruct(cfg)
	v.validateCrossField(cfg)
	if v.HasErrors() {
		return nil, v
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// readEnv overrides defaulted fields with any non-empty environment value.
func (v *ConfigValidator) readEnv(cfg *Config, getenv func(string) string) {
	rv := reflect.ValueOf(cfg).Elem()
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		key := EnvPrefix + tag
		raw := strings.TrimSpace(getenv(key))
		if raw == "" {
			continue
		}

		f := rv.Field(i)
		switch {
		case f.Type() == durationType:
			d, err := time.ParseDuration(raw)
			if err != nil {
				v.AddError(key, "must be a duration such as 30s or 2m")
				continue
			}
			f.SetInt(int64(d))
		case f.Kind() == reflect.String:
			f.SetString(raw)
		case f.Kind() >= reflect.Int && f.Kind() <= reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				v.AddError(key, "must be a valid integer")
				continue
			}
			f.SetInt(n)
		case f.Kind() >= reflect.Uint && f.Kind() <= reflect.Uint64:
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				v.AddError(key, "must be a non-negative integer")
				continue
			}
			f.SetUint(n)
		}
	}
}

// validateCrossField covers what struct tags cannot express.
func (v *ConfigValidator) validateCrossField(cfg *Config) {
	if cfg.Provider == ProviderCloudinary && cfg.CloudinaryURL != "" {
		u, err := url.Parse(cfg.CloudinaryURL)
		if err != nil || u.Scheme != "cloudinary" || u.Host == "" {
			v.AddError(EnvPrefix+"CLOUDINARY_URL", "must look like cloudinary://<api_key>:<api_secret>@<cloud_name>")
		}
	}
	if cfg.S3Endpoint != "" {
		v.ValidateEndpoint(EnvPrefix+"S3_ENDPOINT", cfg.S3Endpoint)
	}
	if cfg.ImagePathPrefix != "" && !strings.HasPrefix(cfg.ImagePathPrefix, "/") {
		v.AddError(EnvPrefix+"IMAGE_PATH_PREFIX", "must start with /")
	}
}

// ImageSource is the remote location rendered images may be loaded from.
type ImageSource struct {
	Protocol string
	Host     string
	// PathPrefix uses a trailing "/**" to match any sub path.
	PathPrefix string
}

// ImageSource derives the image allow-list from the provider settings.
// MDROP_IMAGE_HOST and MDROP_IMAGE_PATH_PREFIX override the derived values.
func (c *Config) ImageSource() ImageSource {
	src := ImageSource{Protocol: "https"}

	switch c.Provider {
	case ProviderCloudinary:
		src.Host = "res.cloudinary.com"
		if u, err := url.Parse(c.CloudinaryURL); err == nil && u.Host != "" {
			src.PathPrefix = "/" + u.Host + "/**"
		}
	case ProviderMinio:
		base := c.PublicBaseURL
		if base == "" {
			base = c.S3Endpoint
			if !strings.Contains(base, "://") {
				base = "http://" + base
			}
		}
		src = sourceFromBase(base, c.Bucket)
	case ProviderS3:
		base := c.PublicBaseURL
		if base == "" {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.S3Region)
		}
		src = sourceFromBase(base, "")
	}

	if c.ImageHost != "" {
		src.Host = c.ImageHost
	}
	if c.ImagePathPrefix != "" {
		src.PathPrefix = c.ImagePathPrefix
	}
	if src.PathPrefix == "" {
		src.PathPrefix = "/**"
	}
	return src
}

func sourceFromBase(base, bucket string) ImageSource {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return ImageSource{Protocol: "https"}
	}
	return ImageSource{
		Protocol:   u.Scheme,
		Host:       u.Host,
		PathPrefix: strings.TrimSuffix(path.Join("/", u.Path, bucket), "/") + "/**",
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their environment variable name.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if tag := f.Tag.Get("env"); tag != "" {
			return EnvPrefix + tag
		}
		return f.Name
	})
	return v
}
