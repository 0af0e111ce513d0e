package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ruleValidatorOnce sync.Once
	ruleValidator     *validator.Validate
)

func getValidator() *validator.Validate {
	ruleValidatorOnce.Do(func() {
		ruleValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return ruleValidator
}

// ValidIATA reports whether code looks like a three-letter airport code.
func ValidIATA(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, c := range code {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

// NormalizeIATA upper-cases and trims an airport code.
func NormalizeIATA(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks the field constraints of a rule and the relations between
// them. A rule that fails validation is skipped by the worker and counted as
// an error, no event is written for it.
func (r *AlertRule) Validate() error {
	if err := getValidator().Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return NewAppError(ErrCodeValidationInvalidRule,
				fmt.Sprintf("field %s failed %s", fe.Field(), fe.Tag()), err)
		}
		return NewAppError(ErrCodeValidationInvalidRule, "rule validation failed", err)
	}

	if r.WaveMinM != nil && r.WaveMaxM != nil && *r.WaveMinM > *r.WaveMaxM {
		return NewAppError(ErrCodeValidationInvalidRule, "wave_min_m exceeds wave_max_m", nil)
	}
	if r.DateFrom != nil && r.DateTo != nil && r.DateTo.Before(*r.DateFrom) {
		return NewAppError(ErrCodeValidationInvalidDate, "date_to is before date_from", nil)
	}
	return nil
}
