package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators makes gin's validator report json field names and adds the
// latitude/longitude range checks used by listing payloads.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("lat", func(fl validator.FieldLevel) bool {
			f := fl.Field().Float()
			return f >= -90 && f <= 90
		})
		_ = v.RegisterValidation("lng", func(fl validator.FieldLevel) bool {
			f := fl.Field().Float()
			return f >= -180 && f <= 180
		})
	})
}

// BindJSON decodes the request body into dst and converts binding failures into a
// validation AppError with one entry per offending field.
func BindJSON(c *gin.Context, dst interface{}) error {
	RegisterValidators()
	if err := c.ShouldBindJSON(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

// DecodeJSON decodes the request body without running binding rules, for inputs the
// service normalizes and validates itself.
func DecodeJSON(c *gin.Context, dst interface{}) error {
	if c.Request == nil || c.Request.Body == nil {
		return ValidationError("invalid request body")
	}
	if err := json.NewDecoder(c.Request.Body).Decode(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

// BindQuery is BindJSON for query strings.
func BindQuery(c *gin.Context, dst interface{}) error {
	RegisterValidators()
	if err := c.ShouldBindQuery(dst); err != nil {
		return bindingError(err)
	}
	return nil
}

func bindingError(err error) *AppError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return ValidationError("validation failed", fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return ValidationError("validation failed", FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
		})
	}
	return ValidationError("invalid request body")
}

// fieldPath drops the top-level struct name so nested fields read "address.city".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lat":
		return "must be a latitude between -90 and 90"
	case "lng":
		return "must be a longitude between -180 and 180"
	}
	return "is invalid"
}

// ValidateStruct runs the binding rules on a value that did not come through a request
// binder, so services reject bad input the same way controllers do.
func ValidateStruct(v interface{}) error {
	RegisterValidators()
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return bindingError(err)
	}
	return nil
}
