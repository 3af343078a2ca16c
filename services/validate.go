package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/citizenvoice/citizenvoice-api/apierrors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// validateStruct checks validate tags and reports every failing field
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apierrors.Validation("body", err.Error())
	}
	out := &apierrors.ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, apierrors.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return out
}

// fieldPath drops the struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "email":
		return "must be a valid email"
	case "gt", "gte", "lte", "lt":
		return "must be " + fe.Tag() + " " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

// validationErrors accumulates business rule failures into one ValidationError
type validationErrors struct {
	fields []apierrors.FieldError
}

func (v *validationErrors) add(field, message string) {
	v.fields = append(v.fields, apierrors.FieldError{Field: field, Message: message})
}

func (v *validationErrors) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &apierrors.ValidationError{Fields: v.fields}
}
