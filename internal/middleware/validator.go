package middleware

import (
	"go-echo-foodgram/internal/validation"
)

// Validator plugs the shared validator into echo's c.Validate.
type Validator struct{}

func (Validator) Validate(i interface{}) error {
	return validation.ValidateStruct(i)
}
