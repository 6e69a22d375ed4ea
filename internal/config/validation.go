package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ConfigValidationError represents a configuration validation error.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ConfigValidator collects validation errors so they can be reported together.
// It implements error.
type ConfigValidator struct {
	errors []ConfigValidationError
}

// NewConfigValidator creates a new configuration validator.
func NewConfigValidator() *ConfigValidator {
	return &ConfigValidator{
		errors: make([]ConfigValidationError, 0),
	}
}

// AddError adds a validation error.
func (v *ConfigValidator) AddError(field, message string) {
	v.errors = append(v.errors, ConfigValidationError{
		Field:   field,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors.
func (v *ConfigValidator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors.
func (v *ConfigValidator) Errors() []ConfigValidationError {
	return v.errors
}

func (v *ConfigValidator) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Configuration validation failed with %d error(s):\n", len(v.errors)))
	for i, err := range v.errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidateStruct runs the struct tag rules and records every failure.
func (v *ConfigValidator) ValidateStruct(cfg *Config) {
	err := validate.Struct(cfg)
	if err == nil {
		return
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		v.AddError("config", err.Error())
		return
	}
	for _, fe := range verrs {
		v.AddError(fe.Field(), describe(fe))
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_unless":
		return "required environment variable not set"
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got: %v)", strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "url":
		return "invalid URL format"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gtefield":
		return fmt.Sprintf("must not be smaller than %s%s", EnvPrefix, envName(fe.Param()))
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func envName(field string) string {
	switch field {
	case "MaxUploadBytes":
		return "MAX_UPLOAD_BYTES"
	default:
		return field
	}
}

// ValidateEndpoint accepts host:port or an http(s) URL without a path.
func (v *ConfigValidator) ValidateEndpoint(key, value string) {
	if value == "" {
		return
	}
	if !strings.Contains(value, "://") {
		if strings.ContainsAny(value, "/ ") {
			v.AddError(key, "must be host:port or an http(s) URL")
		}
		return
	}

	parsed, err := url.Parse(value)
	if err != nil {
		v.AddError(key, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.AddError(key, "URL must use http or https scheme")
	}
	if parsed.Path != "" && parsed.Path != "/" {
		v.AddError(key, "endpoint must not contain a path")
	}
}
