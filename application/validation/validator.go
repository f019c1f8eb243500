// Package validation checks run manifests before anything is loaded.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/pseudokernel/domain/entities"
	"github.com/reglet-dev/pseudokernel/domain/ports"
)

// ManifestValidator validates manifests with the struct tags on
// entities.Manifest.
type ManifestValidator struct {
	validate *validator.Validate
}

// NewManifestValidator creates a new validator. Field names in reports use
// the manifest's YAML keys.
func NewManifestValidator() ports.ManifestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &ManifestValidator{validate: v}
}

// Validate checks the manifest. Rule violations are reported in the result;
// the error is reserved for a validator that could not run at all.
func (v *ManifestValidator) Validate(manifest *entities.Manifest) (*entities.ValidationResult, error) {
	result := &entities.ValidationResult{Valid: true}
	if manifest == nil {
		return nil, fmt.Errorf("nil manifest")
	}

	err := v.validate.Struct(manifest)
	if err == nil {
		return result, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	result.Valid = false
	for _, fe := range verrs {
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return result, nil
}

// fieldPath drops the struct name from the namespace, leaving e.g.
// "files[0].name".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "unique":
		return fmt.Sprintf("must have unique %s values", strings.ToLower(fe.Param()))
	case "excludes":
		return fmt.Sprintf("must not contain %q", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "len":
		return fmt.Sprintf("must be %s characters long", fe.Param())
	case "hexadecimal":
		return "must be hexadecimal"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' rule", fe.Tag())
	}
}
