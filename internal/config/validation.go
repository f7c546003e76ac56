package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags first, then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules checks that the selected backend is usable.
func validateCustomRules(cfg *Config) error {
	switch cfg.Remote.Backend {
	case "github":
		if cfg.Remote.GitHub.Owner == "" || cfg.Remote.GitHub.Repo == "" {
			return fmt.Errorf("remote.github: owner and repo are required for the github backend")
		}
	case "git":
		if cfg.Remote.Git.Path == "" {
			return fmt.Errorf("remote.git: path is required for the git backend")
		}
	}
	return nil
}

// formatValidationError reports the first failed field.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
