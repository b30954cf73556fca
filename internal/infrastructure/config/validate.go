package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	return v
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return describe(fieldErrs[0])
		}
		return err
	}
	if c.App.Env == "production" {
		return c.validateProduction()
	}
	return nil
}

// describe turns a field error into a message naming the config key, e.g. "modules.lock_backend".
func describe(e validator.FieldError) error {
	key := e.Namespace()
	if i := strings.IndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	switch e.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", key, e.Param(), e.Value())
	case "ltefield":
		return fmt.Errorf("%s (%v) cannot exceed %s", key, e.Value(), e.Param())
	case "min":
		if e.Param() == "0" {
			return fmt.Errorf("%s cannot be negative, got %v", key, e.Value())
		}
		return fmt.Errorf("%s must be at least %s, got %v", key, e.Param(), e.Value())
	case "gt":
		if e.Param() == "0" {
			return fmt.Errorf("%s must be positive, got %v", key, e.Value())
		}
		return fmt.Errorf("%s must be greater than %s, got %v", key, e.Param(), e.Value())
	case "max":
		return fmt.Errorf("%s must be at most %s, got %v", key, e.Param(), e.Value())
	case "required":
		return fmt.Errorf("%s is required", key)
	default:
		return fmt.Errorf("%s is invalid (%s), got %v", key, e.Tag(), e.Value())
	}
}

func (c *Config) validateProduction() error {
	switch {
	case c.Database.Driver != "postgres":
		return fmt.Errorf("database.driver must be postgres in production")
	case c.Database.Password == "":
		return fmt.Errorf("database.password is required in production")
	case c.Database.SSLMode == "disable":
		return fmt.Errorf("database.sslmode cannot be 'disable' in production")
	case len(c.JWT.Secret) < 32:
		return fmt.Errorf("jwt.secret must be at least 32 characters in production")
	}
	return nil
}
