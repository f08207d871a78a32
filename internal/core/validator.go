package core

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"mailroom/internal/types"
)

// Validator wraps go-playground/validator and translates its failures into
// the service's AppError vocabulary so handlers return consistent 400s.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ValidateStruct validates a request struct against its `validate` tags.
// On failure it returns a *types.AppError with a field-specific message and
// a details map of field -> failed rule; never the submitted values.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	invalid, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError means the caller passed a non-struct;
		// that is a programming error, not client input.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	details := make(map[string]any, len(invalid))
	code := types.ErrCodeValidationMissingField
	for _, fe := range invalid {
		details[fe.Field()] = fe.Tag()
		if fe.Tag() == "email" {
			code = types.ErrCodeValidationInvalidEmail
		}
	}

	return types.NewAppErrorWithDetails(
		code,
		"request body failed validation",
		err,
		details,
	)
}
