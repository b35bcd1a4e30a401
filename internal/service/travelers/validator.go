package travelers

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vladislavdragonenkov/pdv/internal/domain"
)

// basicEmail — простой шаблон local@domain.tld.
var basicEmail = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// NewValidator создаёт validator с именами полей из json-тегов и тегом basic_email.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("basic_email", func(fl validator.FieldLevel) bool {
		return basicEmail.MatchString(fl.Field().String())
	})
	return v
}

// FormatValidationErrors превращает ошибки validator в domain.FieldError с причиной cause.
func FormatValidationErrors(cause error, err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) {
		details := make(map[string]string, len(errs))
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return domain.NewFieldError(cause, details)
	}
	return fmt.Errorf("%w: %v", cause, err)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "email", "basic_email":
		return "must be a valid email"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	}
	return "is invalid"
}
