package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError reports an input that violates a field constraint.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func init() {
	// Report JSON names (event_type, location.lat) instead of Go field names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// validateStruct runs the binding tags through gin's validator and converts the first failure.
func validateStruct(v interface{}) error {
	err := binding.Validator.ValidateStruct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	return &ValidationError{Reason: err.Error()}
}

// BindError converts a gin binding failure (malformed JSON, wrong types, tag violations) into a *ValidationError.
func BindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &ValidationError{Field: typeErr.Field, Reason: "must be a " + typeErr.Type.String()}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	return &ValidationError{Field: "body", Reason: err.Error()}
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "field required"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		reason = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "gt":
		reason = "must be greater than " + fe.Param()
	case "gte":
		reason = "must be greater than or equal to " + fe.Param()
	case "lte":
		reason = "must be less than or equal to " + fe.Param()
	default:
		reason = "failed " + fe.Tag() + " validation"
	}
	return &ValidationError{Field: field, Reason: reason}
}
