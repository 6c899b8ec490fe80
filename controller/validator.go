package controller

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type requestValidator struct {
	v *validator.Validate
}

func newValidator() *requestValidator {
	v := validator.New()
	// use JSON names in messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

func (rv *requestValidator) Validate(i any) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ErrInvalid(err, "invalid payload")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}
	return &appError{Code: "VALIDATION_ERROR", Status: 400, Err: err, Public: strings.Join(msgs, "; ")}
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_without":
		return fmt.Sprintf("%s is required", fieldPath(fe))
	case "email":
		return fmt.Sprintf("%s must be an email address", fieldPath(fe))
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fieldPath(fe), fe.Param())
	case "len":
		return fmt.Sprintf("%s must have %s characters", fieldPath(fe), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date (%s)", fieldPath(fe), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", fieldPath(fe), fe.Tag())
	}
}

// bindValid binds the request body into v and validates it.
func bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return ErrInvalid(err, "invalid payload")
	}
	return c.Validate(v)
}

// fieldPath drops the struct name from the namespace: items[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
