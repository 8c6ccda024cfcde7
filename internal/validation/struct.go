package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"quill/internal/models"

	"github.com/go-playground/validator/v10"
)

// FieldError describes one failed field in a request payload.
type FieldError struct {
	Field string `json:"field"`
	Msg   string `json:"msg"`
}

var (
	once     sync.Once
	validate *validator.Validate
)

func instance() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		registerCustom(v)
		validate = v
	})
	return validate
}

func registerCustom(v *validator.Validate) {
	// trimmed length bounds: `trimlen=3-1000`
	_ = v.RegisterValidation("trimlen", func(fl validator.FieldLevel) bool {
		var lo, hi int
		if _, err := fmt.Sscanf(fl.Param(), "%d-%d", &lo, &hi); err != nil {
			return false
		}
		n := len([]rune(strings.TrimSpace(fl.Field().String())))
		return n >= lo && n <= hi
	})
	_ = v.RegisterValidation("poststatus", func(fl validator.FieldLevel) bool {
		raw := fl.Field().String()
		return raw == "" || models.PostStatus(raw).Valid()
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidateUsername(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return ValidatePassword(fl.Field().String()) == nil
	})
}

// Fields validates s and returns every failing field, or nil.
func Fields(s any) []FieldError {
	err := instance().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []FieldError{{Field: "", Msg: err.Error()}}
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Msg: message(fe)})
	}
	return out
}

// Struct validates s and returns a VALIDATION_ERROR AppError naming the first
// failing field.
func Struct(s any) error {
	fields := Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return models.NewValidationError(fields[0].Msg)
}

func message(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, param)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, param)
	case "trimlen":
		bounds := strings.SplitN(param, "-", 2)
		if len(bounds) == 2 {
			return fmt.Sprintf("%s must be between %s and %s characters", field, bounds[0], bounds[1])
		}
		return fmt.Sprintf("%s has an invalid length", field)
	case "poststatus":
		return fmt.Sprintf("%s must be published or draft", field)
	case "username":
		if err := ValidateUsername(fe.Value().(string)); err != nil {
			return err.Error()
		}
	case "password":
		if err := ValidatePassword(fe.Value().(string)); err != nil {
			return err.Error()
		}
	}
	return fmt.Sprintf("%s is invalid", field)
}
