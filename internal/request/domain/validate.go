package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// имена полей в ошибках как в JSON
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("service_type", func(fl validator.FieldLevel) bool {
			return ServiceType(fl.Field().String()).Valid()
		})
		validate = v
	})
	return validate
}

// NewRequestInput is the create payload after decoding.
type NewRequestInput struct {
	ServiceType string   `json:"service_type" validate:"required,service_type"`
	Description *string  `json:"description,omitempty" validate:"omitempty,max=2000"`
	Location    Location `json:"location" validate:"required"`
}

// RatingInput is the rate payload.
type RatingInput struct {
	Rating int     `json:"rating" validate:"required,gte=1,lte=5"`
	Review *string `json:"review,omitempty" validate:"omitempty,max=2000"`
}

// Validate checks the create payload; address must carry non-blank text.
func (in NewRequestInput) Validate() error {
	if err := toValidationError(getValidator().Struct(in)); err != nil {
		return err
	}
	if strings.TrimSpace(in.Location.Address) == "" {
		return &ValidationError{Field: "location.address", Reason: "required"}
	}
	return nil
}

// Validate checks rating bounds and review length.
func (in RatingInput) Validate() error {
	return toValidationError(getValidator().Struct(in))
}

// ValidatePrice rejects negative prices and more than two fractional digits.
func ValidatePrice(p *decimal.Decimal) error {
	if p == nil {
		return nil
	}
	if p.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must be non-negative"}
	}
	if !p.Equal(p.Round(2)) {
		return &ValidationError{Field: "price", Reason: "at most two decimal places"}
	}
	if p.GreaterThanOrEqual(decimal.NewFromInt(100_000_000)) {
		return &ValidationError{Field: "price", Reason: "too large"}
	}
	return nil
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: "input", Reason: err.Error()}
	}
	fe := verrs[0]
	field := fe.Namespace()
	// отрезаем имя корневой структуры: NewRequestInput.location.address → location.address
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	return &ValidationError{Field: field, Reason: reason(fe)}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "service_type":
		return "unknown service type " + quote(fe.Value())
	case "max":
		return "longer than " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

func quote(v any) string {
	s, _ := v.(string)
	return `"` + s + `"`
}
