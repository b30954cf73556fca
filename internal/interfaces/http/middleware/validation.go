package middleware

import (
	"errors"
	"reflect"
	"strings"

	"github.com/erp/platform/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// SetupValidator makes validation errors report json/uri field names
func SetupValidator() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(fieldName)
	}
}

func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "uri", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// ValidationProblem converts a binding error into a 400 problem
func ValidationProblem(err error) dto.Problem {
	p := dto.NewProblem(dto.ErrCodeValidation, "Request validation failed")

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		p.Detail = err.Error()
		return p
	}
	for _, e := range verrs {
		p.Errors = append(p.Errors, dto.ValidationDetail{
			Field:   e.Field(),
			Message: validationMessage(e),
		})
	}
	return p
}

// HandleValidationError aborts with a validation problem
func HandleValidationError(c *gin.Context, err error) {
	AbortWithProblem(c, ValidationProblem(err))
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "uuid":
		return "Invalid UUID format"
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	default:
		return "Invalid value"
	}
}
