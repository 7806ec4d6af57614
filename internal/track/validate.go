package track

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Aggregation validation messages. Each violated rule yields exactly one.
const (
	MsgIntervalTooSmall = "Interval must be greater than 0.1 meters"
	MsgInvalidMethod    = "Method must be one of: median, mean, ema"
	MsgEMASpanTooSmall  = "EMA span must be at least 1"
)

// ValidationResult is the outcome of a settings pre-check.
type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Errors  []string `json:"errors"`
}

// ValidationError carries a failed ValidationResult as an error.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Result.Errors, "; ")
}

// Invalid builds a *ValidationError from messages.
func Invalid(msgs ...string) *ValidationError {
	return &ValidationError{Result: ValidationResult{Errors: msgs}}
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationError{Result: r}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func settingsValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		v.RegisterStructValidation(aggregationStructLevel, AggregationSettings{})
		validate = v
	})
	return validate
}

// aggregationStructLevel enforces the span rule, which only applies to EMA.
func aggregationStructLevel(sl validator.StructLevel) {
	s := sl.Current().Interface().(AggregationSettings)
	if s.Method == MethodEMA && s.EMASpan < 1 {
		sl.ReportError(s.EMASpan, "emaSpan", "EMASpan", "emaspan", "1")
	}
}

// ValidateAggregation checks s and returns human-readable rule violations.
// It never runs an aggregation.
func ValidateAggregation(s AggregationSettings) ValidationResult {
	res := ValidationResult{IsValid: true, Errors: []string{}}
	err := settingsValidator().Struct(s)
	if err == nil {
		return res
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		res.IsValid = false
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	seen := make(map[string]bool)
	for _, fe := range verrs {
		msg := aggregationMessage(fe)
		if seen[msg] {
			continue
		}
		seen[msg] = true
		res.Errors = append(res.Errors, msg)
	}
	res.IsValid = len(res.Errors) == 0
	return res
}

func aggregationMessage(fe validator.FieldError) string {
	switch fe.StructField() {
	case "Interval":
		return MsgIntervalTooSmall
	case "Method":
		return MsgInvalidMethod
	case "EMASpan":
		return MsgEMASpanTooSmall
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// ValidateOutlierSettings rejects non-positive multipliers and thresholds.
func ValidateOutlierSettings(s OutlierSettings) error {
	err := settingsValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s must be greater than 0", fe.Field()))
	}
	return &ValidationError{Result: ValidationResult{Errors: msgs}}
}
