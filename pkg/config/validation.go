package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that span
// several sections.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	http := &cfg.Adapters.HTTP

	if !http.Enabled {
		return errors.New("adapters: at least one adapter must be enabled")
	}

	if http.Workers < 1 {
		return fmt.Errorf("adapters.http.workers: must be at least 1, got %d", http.Workers)
	}
	if http.QueueDepth < 1 {
		return fmt.Errorf("adapters.http.queue_depth: must be at least 1, got %d", http.QueueDepth)
	}
	if http.AcceptPollTimeout <= 0 {
		return fmt.Errorf("adapters.http.accept_poll_timeout: must be positive, got %v", http.AcceptPollTimeout)
	}

	if cfg.Server.Metrics.Enabled {
		if cfg.Server.Metrics.Port == 0 {
			return errors.New("server.metrics.port: required when metrics are enabled")
		}
		if http.Port != 0 && cfg.Server.Metrics.Port == http.Port {
			return fmt.Errorf("server.metrics.port: %d is already used by the HTTP adapter", http.Port)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
