package config

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks struct tags first, then the rules tags can't express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

func validateCustomRules(cfg *Config) error {
	for _, p := range cfg.ReconcileIgnore {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("RECONCILE_IGNORE: invalid pattern %q", p)
		}
	}
	if cfg.MetricsAddr != "" && cfg.MetricsAddr == cfg.ListenAddr {
		return fmt.Errorf("METRICS_ADDR must differ from LISTEN_ADDR (%s)", cfg.ListenAddr)
	}
	return nil
}

// formatValidationError reports the first failing field by its environment name.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			envName(e.StructField()), e.Tag(), e.Value())
	}
	return err
}

// envName maps a Config field name to its environment variable.
func envName(field string) string {
	if f, ok := reflect.TypeOf(Config{}).FieldByName(field); ok {
		if tag := f.Tag.Get("envconfig"); tag != "" {
			return tag
		}
	}
	return field
}
