// Package validation checks tagged structs with go-playground/validator and
// reports failures as CodeValidation errors named after the JSON fields.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "workspace-audit/pkg/domain-errors"
)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New(validator.WithRequiredStructEnabled())
	val.RegisterTagNameFunc(jsonName)
	_ = val.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return val
}

// jsonName reports fields by their JSON key so messages match what the
// client sent.
func jsonName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return strings.ToLower(f.Name[:1]) + f.Name[1:]
	}
	return name
}

// RegisterValidation adds a string tag. Register from package init only.
func RegisterValidation(tag string, fn func(value string) bool) {
	_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().String())
	})
}

// Validate checks req and joins every field failure into one message.
func Validate(req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = describe(fe)
	}
	return dErrors.New(dErrors.CodeValidation, strings.Join(msgs, "; "))
}

var templates = map[string]string{
	"required": "%s is required",
	"notblank": "%s must not be blank",
	"min":      "%s must be at least %s",
	"gte":      "%s must be at least %s",
	"max":      "%s must be at most %s",
	"lte":      "%s must be at most %s",
	"oneof":    "%s must be one of [%s]",
	"gtefield": "%s must not be before %s",
	"url":      "%s must be a valid url",
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	tmpl, ok := templates[fe.ActualTag()]
	if !ok {
		return field + " is invalid"
	}
	param := fe.Param()
	if fe.ActualTag() == "gtefield" {
		param = strings.ToLower(param[:1]) + param[1:]
	}
	if strings.Count(tmpl, "%s") == 1 {
		return fmt.Sprintf(tmpl, field)
	}
	return fmt.Sprintf(tmpl, field, param)
}
