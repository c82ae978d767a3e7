package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError reports the column and value that violate the log's shape.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

const (
	// PathSeparator joins the tokens of a cycle path, e.g. "USDT→WBNB→CAKE→USDT".
	PathSeparator = "→"
	// RouterSeparator joins the per-hop router identifiers.
	RouterSeparator = ","
)

// numericColumn mirrors a DECIMAL(precision, scale) column.
type numericColumn struct {
	precision int32
	scale     int32
}

// maxCoefficientDigits bounds the significant digits of an amount as written.
const maxCoefficientDigits = 64

var (
	amountColumn     = numericColumn{precision: 18, scale: 6}
	percentageColumn = numericColumn{precision: 10, scale: 6}

	// consistencyTolerance is one unit in the last stored place.
	consistencyTolerance = decimal.New(1, -6)
	hundred              = decimal.NewFromInt(100)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report column names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("db"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// bounds rejects amounts that cannot fit the column by looking only at the
// coefficient length and exponent, before any arithmetic touches them. Zero is
// normalised so that its exponent cannot leak into later operations.
func (c numericColumn) bounds(field string, d *decimal.NullDecimal) error {
	if !d.Valid {
		return nil
	}
	if d.Decimal.IsZero() {
		d.Decimal = decimal.Zero
		return nil
	}
	digits := int64(d.Decimal.NumDigits())
	exp := int64(d.Decimal.Exponent())
	switch {
	case digits > maxCoefficientDigits:
		return &ValidationError{
			Field:  field,
			Value:  shortValue(d.Decimal),
			Reason: fmt.Sprintf("has more than %d significant digits", maxCoefficientDigits),
		}
	case digits+exp > int64(c.precision-c.scale):
		return &ValidationError{
			Field:  field,
			Value:  shortValue(d.Decimal),
			Reason: fmt.Sprintf("does not fit numeric(%d,%d)", c.precision, c.scale),
		}
	case exp < -int64(c.scale+maxCoefficientDigits):
		return &ValidationError{
			Field:  field,
			Value:  shortValue(d.Decimal),
			Reason: fmt.Sprintf("has more than %d fractional digits", c.scale),
		}
	}
	return nil
}

// CheckAmount applies the amount column bounds to a value used outside an
// attempt, such as a profit filter.
func CheckAmount(field string, d decimal.NullDecimal) (decimal.NullDecimal, error) {
	err := amountColumn.bounds(field, &d)
	return d, err
}

// shortValue renders a decimal as coefficient and exponent, clipped, for error
// messages about values that may not be safe to expand.
func shortValue(d decimal.Decimal) string {
	coef := d.Coefficient().String()
	if len(coef) > 20 {
		coef = coef[:20] + "…"
	}
	return fmt.Sprintf("%se%d", coef, d.Exponent())
}

func (c numericColumn) check(field string, d decimal.NullDecimal) error {
	if !d.Valid {
		return nil
	}
	if !d.Decimal.Equal(d.Decimal.Truncate(c.scale)) {
		return &ValidationError{
			Field:  field,
			Value:  d.Decimal.String(),
			Reason: fmt.Sprintf("has more than %d fractional digits", c.scale),
		}
	}
	if d.Decimal.Abs().GreaterThanOrEqual(decimal.New(1, c.precision-c.scale)) {
		return &ValidationError{
			Field:  field,
			Value:  d.Decimal.String(),
			Reason: fmt.Sprintf("does not fit numeric(%d,%d)", c.precision, c.scale),
		}
	}
	return nil
}

// Prepare validates an attempt against the log's column constraints and returns
// the normalised copy that will be written. Profit and profit percentage are
// derived only when the caller leaves them out; supplied values must agree with
// the amounts. The timestamp is rounded to the microsecond, the resolution the
// log stores, so the returned copy equals what a later read returns.
func Prepare(a ArbitrageAttempt) (ArbitrageAttempt, error) {
	if a.BaseToken != "" && strings.TrimSpace(a.BaseToken) == "" {
		return a, &ValidationError{Field: "base_token", Value: a.BaseToken, Reason: "must not be blank"}
	}
	a.BaseToken = strings.TrimSpace(a.BaseToken)
	a.Path = strings.TrimSpace(a.Path)
	a.Routers = strings.TrimSpace(a.Routers)

	if !a.Timestamp.IsZero() {
		a.Timestamp = a.Timestamp.Round(time.Microsecond)
	}

	if err := validate.Struct(a); err != nil {
		return a, translateFieldError(err)
	}

	for _, amt := range []struct {
		field  string
		column numericColumn
		value  *decimal.NullDecimal
	}{
		{"start_amount_usdt", amountColumn, &a.StartAmountUSDT},
		{"end_amount_usdt", amountColumn, &a.EndAmountUSDT},
		{"profit_usdt", amountColumn, &a.ProfitUSDT},
		{"profit_percentage", percentageColumn, &a.ProfitPercentage},
	} {
		if err := amt.column.bounds(amt.field, amt.value); err != nil {
			return a, err
		}
	}

	for _, amt := range []struct {
		field string
		value decimal.NullDecimal
	}{
		{"start_amount_usdt", a.StartAmountUSDT},
		{"end_amount_usdt", a.EndAmountUSDT},
	} {
		if amt.value.Valid && amt.value.Decimal.IsNegative() {
			return a, &ValidationError{Field: amt.field, Value: amt.value.Decimal.String(), Reason: "must not be negative"}
		}
	}

	if err := reconcileProfit(&a); err != nil {
		return a, err
	}

	checks := []struct {
		field  string
		column numericColumn
		value  decimal.NullDecimal
	}{
		{"start_amount_usdt", amountColumn, a.StartAmountUSDT},
		{"end_amount_usdt", amountColumn, a.EndAmountUSDT},
		{"profit_usdt", amountColumn, a.ProfitUSDT},
		{"profit_percentage", percentageColumn, a.ProfitPercentage},
	}
	for _, c := range checks {
		if err := c.column.check(c.field, c.value); err != nil {
			return a, err
		}
	}

	if err := checkCycle(a); err != nil {
		return a, err
	}
	return a, nil
}

func reconcileProfit(a *ArbitrageAttempt) error {
	start, end := a.StartAmountUSDT, a.EndAmountUSDT

	if start.Valid && end.Valid {
		expected := end.Decimal.Sub(start.Decimal)
		if !a.ProfitUSDT.Valid {
			a.ProfitUSDT = Amount(expected)
		} else if a.ProfitUSDT.Decimal.Sub(expected).Abs().GreaterThan(consistencyTolerance) {
			return &ValidationError{
				Field:  "profit_usdt",
				Value:  a.ProfitUSDT.Decimal.String(),
				Reason: fmt.Sprintf("does not equal end_amount_usdt - start_amount_usdt (%s)", expected.String()),
			}
		}
	}

	if !start.Valid || !start.Decimal.IsPositive() || !a.ProfitUSDT.Valid {
		return nil
	}
	expected := a.ProfitUSDT.Decimal.Div(start.Decimal).Mul(hundred).Round(percentageColumn.scale)
	if !a.ProfitPercentage.Valid {
		a.ProfitPercentage = Amount(expected)
		return nil
	}
	if a.ProfitPercentage.Decimal.Sub(expected).Abs().GreaterThan(consistencyTolerance) {
		return &ValidationError{
			Field:  "profit_percentage",
			Value:  a.ProfitPercentage.Decimal.String(),
			Reason: fmt.Sprintf("does not equal profit_usdt / start_amount_usdt * 100 (%s)", expected.String()),
		}
	}
	return nil
}

func checkCycle(a ArbitrageAttempt) error {
	var tokens []string
	if a.Path != "" {
		tokens = SplitPath(a.Path)
		for _, tok := range tokens {
			if tok == "" {
				return &ValidationError{Field: "path", Value: a.Path, Reason: "contains an empty hop"}
			}
		}
		if len(tokens) < 3 {
			return &ValidationError{Field: "path", Value: a.Path, Reason: "must contain at least two hops"}
		}
		if !strings.EqualFold(tokens[0], tokens[len(tokens)-1]) {
			return &ValidationError{Field: "path", Value: a.Path, Reason: "is not a closed cycle"}
		}
		if a.BaseToken != "" && !strings.EqualFold(tokens[0], a.BaseToken) {
			return &ValidationError{
				Field:  "path",
				Value:  a.Path,
				Reason: fmt.Sprintf("does not start and end at base_token %s", a.BaseToken),
			}
		}
	}

	if a.Routers == "" {
		return nil
	}
	routers := SplitRouters(a.Routers)
	for _, r := range routers {
		if r == "" {
			return &ValidationError{Field: "routers", Value: a.Routers, Reason: "contains an empty router"}
		}
	}
	// A single router may serve every hop.
	if hops := len(tokens) - 1; tokens != nil && len(routers) != 1 && len(routers) != hops {
		return &ValidationError{
			Field:  "routers",
			Value:  a.Routers,
			Reason: fmt.Sprintf("lists %d routers for %d hops", len(routers), hops),
		}
	}
	return nil
}

func translateFieldError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	reason := fmt.Sprintf("failed %s validation", fe.Tag())
	if fe.Tag() == "max" {
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return &ValidationError{Field: fe.Field(), Value: fmt.Sprint(fe.Value()), Reason: reason}
}

// SplitPath returns the tokens of a path written with "→" or "->".
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(strings.ReplaceAll(path, "->", PathSeparator), PathSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// FormatPath joins cycle tokens into the stored path form.
func FormatPath(tokens []string) string {
	return strings.Join(tokens, PathSeparator)
}

// SplitRouters returns the per-hop router identifiers.
func SplitRouters(routers string) []string {
	if routers == "" {
		return nil
	}
	parts := strings.Split(routers, RouterSeparator)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
