package validation

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Violations maps an input field to the code of the rule it broke.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Err returns nil when nothing was recorded, otherwise an *Error.
func (v Violations) Err() error {
	if v.Empty() {
		return nil
	}
	return &Error{Violations: v}
}

// Error is returned when caller input is rejected before anything is persisted.
type Error struct {
	Violations Violations
}

func (e *Error) Error() string {
	fields := e.Fields()
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+e.Violations[f])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Fields returns the offending field names in stable order.
func (e *Error) Fields() []string {
	out := make([]string, 0, len(e.Violations))
	for f := range e.Violations {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Field returns the first offending field.
func (e *Error) Field() string {
	if fs := e.Fields(); len(fs) > 0 {
		return fs[0]
	}
	return ""
}

// Has reports whether field was rejected.
func (e *Error) Has(field string) bool {
	_, ok := e.Violations[field]
	return ok
}

// Single builds an error for one field.
func Single(field, code string) error {
	return &Error{Violations: Violations{field: code}}
}

// Basic validators
func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

// Finite rejects NaN and infinities and reports whether val passed.
func Finite(field string, val float64, v Violations) bool {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		v[field] = "invalid_number"
		return false
	}
	return true
}

func NonNegativeFloat(field string, val float64, v Violations) {
	if !Finite(field, val, v) {
		return
	}
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

// Cents rejects money amounts finer than a cent, so nothing is silently rounded away.
func Cents(field string, val float64, v Violations) {
	if !Finite(field, val, v) {
		return
	}
	d := decimal.NewFromFloat(val)
	if !d.Equal(d.Round(2)) {
		v[field] = "sub_cent"
	}
}

func PositiveInt(field string, val int, v Violations) {
	if val <= 0 {
		v[field] = "must_be_positive"
	}
}

func RangeFloat(field string, val, minVal, maxVal float64, v Violations) {
	if !Finite(field, val, v) {
		return
	}
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// OneOf rejects values outside the allowed set. Empty values are left to Required.
func OneOf(field, value string, allowed []string, v Violations) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if a == value {
			return
		}
	}
	v[field] = "not_allowed"
}

// DateLayout is the textual calendar date form accepted by callers.
const DateLayout = "2006-01-02"

// Date parses a YYYY-MM-DD value, recording a violation when it is missing or malformed.
func Date(field, value string, v Violations) (time.Time, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		v[field] = "required"
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		v[field] = "invalid_date"
		return time.Time{}, false
	}
	return t, true
}
