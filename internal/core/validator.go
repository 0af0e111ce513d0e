package core

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/go-playground/validator/v10"

	"tidefly/internal/types"
)

var ruleIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Validator wraps go-playground/validator with the API's custom tags.
type Validator struct {
	v      *validator.Validate
	logger *slog.Logger
}

// NewValidator creates a Validator and registers the "rule_id" tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("rule_id", func(fl validator.FieldLevel) bool {
		return ruleIDPattern.MatchString(fl.Field().String())
	}); err != nil {
		logger.Error("failed to register rule_id validator", "error", err)
	}
	return &Validator{v: v, logger: logger}
}

// ValidateStruct checks s against its validate tags and reports the first
// failing field as a validation AppError.
func (val *Validator) ValidateStruct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()), err).
			WithDetails(map[string]any{"field": fe.Field(), "rule": fe.Tag()})
	}
	return types.NewAppError(types.ErrCodeValidationMissingField, "request validation failed", err)
}

// ValidRuleID reports whether id is a plausible rule identifier.
func ValidRuleID(id string) bool {
	return ruleIDPattern.MatchString(id)
}
