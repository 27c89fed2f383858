package validator

import (
	"math/big"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator instance
var validate *validator.Validate

var ethAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	// EVM address validation
	validate.RegisterValidation("eth_address", func(fl validator.FieldLevel) bool {
		return ethAddressRe.MatchString(fl.Field().String())
	})

	// Listing type validation
	validate.RegisterValidation("listing_type", func(fl validator.FieldLevel) bool {
		t := fl.Field().String()
		return t == "invite_link" || t == "access_code"
	})

	// USDC amount: decimal string, >= 0, at most 6 fractional digits
	validate.RegisterValidation("usdc_amount", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		r, ok := new(big.Rat).SetString(s)
		if !ok || r.Sign() < 0 {
			return false
		}
		if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > 6 {
			return false
		}
		return true
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errors := make(map[string]string)
	for _, err := range err.(validator.ValidationErrors) {
		field := err.Field()
		switch err.Tag() {
		case "required":
			errors[field] = "This field is required"
		case "min":
			errors[field] = "Value is too short (min: " + err.Param() + ")"
		case "max":
			errors[field] = "Value is too long (max: " + err.Param() + ")"
		case "gte":
			errors[field] = "Value must be at least " + err.Param()
		case "url":
			errors[field] = "Invalid URL format"
		case "eth_address":
			errors[field] = "Invalid EVM address"
		case "listing_type":
			errors[field] = "Invalid listing type. Must be: invite_link or access_code"
		case "usdc_amount":
			errors[field] = "Invalid USDC amount"
		default:
			errors[field] = "Invalid value"
		}
	}

	return errors
}

// ValidateVar validates a single variable
func ValidateVar(field interface{}, tag string) error {
	return validate.Var(field, tag)
}
