package core

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their wire names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = validate.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
			return ValidAcademicYear(fl.Field().String())
		})
	})
	return validate
}

// Validate checks v against its struct tags and returns a validation
// error naming the first failing field, in declaration order.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Internal(fmt.Errorf("validate: %w", err))
	}
	return &Error{Kind: KindValidation, Message: describe(verrs[0]), Err: err}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return "Missing required field: " + field
	case "datetime":
		return fmt.Sprintf("Invalid date format for %s. Please use YYYY-MM-DD format.", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "academic_year":
		return fmt.Sprintf("Invalid %s. Please use YYYY-YYYY format with consecutive years.", field)
	default:
		return fmt.Sprintf("Invalid value for %s", field)
	}
}

// ValidAcademicYear reports whether s looks like "2023-2024".
func ValidAcademicYear(s string) bool {
	if len(s) != 9 || s[4] != '-' {
		return false
	}
	first, err := strconv.Atoi(s[:4])
	if err != nil {
		return false
	}
	second, err := strconv.Atoi(s[5:])
	if err != nil {
		return false
	}
	return second == first+1
}

// AcademicYearFor returns the academic year containing t, where each year
// begins on the first day of startMonth.
func AcademicYearFor(t time.Time, startMonth time.Month) string {
	year := t.Year()
	if t.Month() < startMonth {
		year--
	}
	return fmt.Sprintf("%04d-%04d", year, year+1)
}
