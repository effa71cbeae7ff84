package runtime

import (
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// Package-level validator instance
var validate *validator.Validate

// init initializes the validator and registers custom validation functions
func init() {
	validate = validator.New()

	// Register custom validators
	registerCustomValidators()
}

// InitializeConfig is the single entry point for preparing the tagged
// settings structs of this module: the Postgres storage config and the
// HTTP listen address. The configuration document itself (configdoc) does
// not go through it. It combines defaults → value merging → validation in
// one call.
func InitializeConfig(config any, rawValues map[string]any) error {
	// Step 1: Apply defaults from struct tags
	if err := ApplyDefaults(config); err != nil {
		slog.Error("config: failed to apply defaults",
			"config_type", reflect.TypeOf(config).String(),
			"error", err)
		return fmt.Errorf("failed to apply defaults: %w", err)
	}

	// Step 2: Merge raw values (env vars + literals from a YAML/JSON document)
	// Use YAML tags because config structs use yaml tags for field mapping.
	if len(rawValues) > 0 {
		if err := mapToStructFromYAML(rawValues, config); err != nil {
			slog.Error("config: failed to apply raw values",
				"config_type", reflect.TypeOf(config).String(),
				"raw_values", rawValues,
				"error", err)
			return fmt.Errorf("failed to apply config values: %w", err)
		}
	}

	// Step 3: Validate final config (AFTER rawValues are merged)
	// Extract the actual value if config is a pointer
	configValue := reflect.ValueOf(config)
	if configValue.Kind() == reflect.Ptr {
		configValue = configValue.Elem()
	}

	if err := validateConfig(configValue.Interface()); err != nil {
		slog.Error("config: validation failed",
			"config_type", reflect.TypeOf(config).String(),
			"config_value", configValue.Interface(),
			"error", err)
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// registerCustomValidators registers framework-provided custom validation functions
func registerCustomValidators() {
	// dsn validates database connection string format
	// Checks for either URL format (scheme://...) or traditional DSN (user@host...)
	validate.RegisterValidation("dsn", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		// Check for URL format (postgres://..., mysql://..., etc.)
		if strings.Contains(s, "://") {
			_, err := url.Parse(s)
			return err == nil
		}
		// Check for traditional DSN format (user:pass@host/db)
		return strings.Contains(s, "@") && strings.Contains(s, "/")
	})
}

func ApplyDefaults(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to apply default values: %w", err)
	}

	return nil
}

func validateConfig(config any) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := validate.Struct(config); err != nil {
		// Format validation errors for better readability
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, fieldErr := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"field '%s' failed validation: %s (rule: %s)",
					fieldErr.Field(),
					fieldErr.Error(),
					fieldErr.Tag(),
				))
			}
			return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errMessages, "\n  - "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// RegisterCustomValidator lets a package extend the shared validator
// instance with a tag of its own, rather than requiring every domain-
// specific validation rule to live in this file. See httpserver's
// "hostname_port" registration for the intended usage.
func RegisterCustomValidator(tag string, fn validator.Func) error {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		return fmt.Errorf("failed to register custom validator '%s': %w", tag, err)
	}
	return nil
}
