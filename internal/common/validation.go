package common

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FromValidation converts the result of validation.ValidateStruct into a
// ValidationError. Non-field errors are returned unchanged.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var internal interface{ InternalError() error }
	if errors.As(err, &internal) {
		return err
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		if fieldErr != nil {
			fields[field] = fieldErr.Error()
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
