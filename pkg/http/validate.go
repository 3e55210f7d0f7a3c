package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report json names so errors match the request body
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// ReadAndValidateRequest binds req, fills default tags, then validates it.
// It returns nil when req is usable.
func ReadAndValidateRequest(c echo.Context, req interface{}) []ValidationError {
	if err := c.Bind(req); err != nil {
		return toValidationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return toValidationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return toValidationErrors(err)
	}
	return nil
}

func toValidationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: errorMessage(fe),
				Params:  errorParams(fe),
			})
		}
		return out
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{Code: "ERR_BIND", Message: fmt.Sprintf("%v", he.Message)}}
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: err.Error()}}
}

// messages holds the wording per validator tag; %[1]s is the field, %[2]s the tag param.
var messages = map[string]string{
	"required": "%[1]s is required",
	"uuid":     "%[1]s must be a UUID",
	"max":      "%[1]s must be at most %[2]s",
	"oneof":    "%[1]s must be one of: %[2]s",
	"gt":       "%[1]s must be greater than %[2]s",
	"gte":      "%[1]s must be at least %[2]s",
	"lt":       "%[1]s must be less than %[2]s",
	"lte":      "%[1]s must be at most %[2]s",
}

func errorMessage(fe validator.FieldError) string {
	param := fe.Param()
	switch fe.Tag() {
	case "oneof":
		param = strings.ReplaceAll(param, " ", ", ")
	case "max":
		if fe.Type().Kind() == reflect.String {
			param += " characters"
		}
	}
	format, ok := messages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag())
	}
	return fmt.Sprintf(format, fe.Field(), param)
}

func errorParams(fe validator.FieldError) map[string]interface{} {
	var key string
	switch fe.Tag() {
	case "gte":
		key = "min"
	case "max", "lte":
		key = "max"
	case "gt", "lt":
		key = "value"
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	default:
		return nil
	}
	return map[string]interface{}{key: fe.Param()}
}
