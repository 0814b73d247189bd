// Package validation provides custom validation rules for the application.
package validation

import (
	"regexp"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/escrowd/internal/errors"
)

var (
	// ethereumAddressRegex matches a 0x-prefixed 20-byte hex address.
	ethereumAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput.
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NotBlank validates that a string is not empty or whitespace-only.
var NotBlank = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_not_blank", "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return validation.NewError("validation_not_blank", "cannot be blank")
	}
	return nil
})

// EthereumAddress validates that a string is a 0x-prefixed 40-hex-digit address.
var EthereumAddress = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_ethereum_address", "must be a string")
	}
	if !ethereumAddressRegex.MatchString(s) {
		return validation.NewError(
			"validation_ethereum_address",
			"must be a 0x-prefixed 40 character hex address",
		)
	}
	return nil
})

// PositiveChainID validates that a chain id is a positive integer.
var PositiveChainID = validation.By(func(value interface{}) error {
	var id int64
	switch v := value.(type) {
	case int:
		id = int64(v)
	case int64:
		id = v
	default:
		return validation.NewError("validation_chain_id", "must be an integer")
	}
	if id <= 0 {
		return validation.NewError("validation_chain_id", "must be positive")
	}
	return nil
})

// HTTPURL validates that a string is an absolute http or https URL.
var HTTPURL = validation.By(func(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_http_url", "must be a string")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return validation.NewError("validation_http_url", "must be an http(s) URL")
	}
	return nil
})
