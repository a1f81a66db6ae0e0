package utils

import (
	"errors"
	"reflect"
	"strings"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return models.IsValidUsername(fl.Field().String())
	})
	_ = validate.RegisterValidation("nodename", func(fl validator.FieldLevel) bool {
		return models.IsValidNodeName(strings.TrimSpace(fl.Field().String()))
	})
	_ = validate.RegisterValidation("objectid", func(fl validator.FieldLevel) bool {
		return models.IsValidID(fl.Field().String())
	})
}

// ValidateStruct runs tag validation and returns the failures keyed by JSON
// field name, or nil when the value is valid.
func ValidateStruct(v interface{}) map[string]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return map[string]string{"_": err.Error()}
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		key := e.Field()
		if ns := e.Namespace(); strings.Contains(ns, ".") {
			key = ns[strings.Index(ns, ".")+1:]
		}
		fields[key] = e.Tag()
	}
	return fields
}
