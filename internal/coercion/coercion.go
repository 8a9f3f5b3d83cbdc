package coercion

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tripbuilder/crmsync/internal/fieldmap"
)

// DateLayout is the only date format sent to the remote.
const DateLayout = "2006-01-02"

// FieldCoercionError reports a value that could not be converted. It is never
// fatal for the record: callers store NULL for the field and move on.
type FieldCoercionError struct {
	ValueType fieldmap.ValueType
	Raw       interface{}
	Reason    string
}

func (e *FieldCoercionError) Error() string {
	return fmt.Sprintf("cannot coerce %v (%T) to %s: %s", e.Raw, e.Raw, e.ValueType, e.Reason)
}

func fail(vt fieldmap.ValueType, raw interface{}, reason string) error {
	return &FieldCoercionError{ValueType: vt, Raw: raw, Reason: reason}
}

// accepted by the date parser, most specific first
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	DateLayout,
}

var truthy = map[string]bool{
	"true": true,
	"yes":  true,
	"1":    true,
}

// ToLocal converts a remote wire value into the typed value stored locally:
// string, time.Time (date at UTC midnight), int64, float64 or bool. A nil or
// blank value yields nil without error.
func ToLocal(vt fieldmap.ValueType, raw interface{}) (interface{}, error) {
	if isBlank(raw) {
		return nil, nil
	}

	switch vt {
	case fieldmap.TypeString, fieldmap.TypeLongText, fieldmap.TypeSingleOption:
		return toText(vt, raw)
	case fieldmap.TypeDate:
		return toDate(raw)
	case fieldmap.TypeInteger:
		return toInteger(raw)
	case fieldmap.TypeDecimal:
		return toDecimal(raw)
	case fieldmap.TypeBoolean:
		return toBool(raw), nil
	}
	return nil, fail(vt, raw, "unknown value type")
}

// ToRemote converts a local typed value into its wire form. Dates are always
// sent as YYYY-MM-DD and booleans as "true"/"false". Pointers are dereferenced;
// a nil value yields nil.
func ToRemote(vt fieldmap.ValueType, v interface{}) (interface{}, error) {
	v = deref(v)
	if v == nil {
		return nil, nil
	}

	switch vt {
	case fieldmap.TypeString, fieldmap.TypeLongText, fieldmap.TypeSingleOption:
		return toText(vt, v)
	case fieldmap.TypeDate:
		d, err := toDate(v)
		if err != nil {
			return nil, err
		}
		return d.Format(DateLayout), nil
	case fieldmap.TypeInteger:
		return toInteger(v)
	case fieldmap.TypeDecimal:
		return toDecimal(v)
	case fieldmap.TypeBoolean:
		if toBool(v) {
			return "true", nil
		}
		return "false", nil
	}
	return nil, fail(vt, v, "unknown value type")
}

func isBlank(raw interface{}) bool {
	raw = deref(raw)
	if raw == nil {
		return true
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func deref(v interface{}) interface{} {
	switch p := v.(type) {
	case *string:
		if p == nil {
			return nil
		}
		return *p
	case *int64:
		if p == nil {
			return nil
		}
		return *p
	case *int:
		if p == nil {
			return nil
		}
		return *p
	case *float64:
		if p == nil {
			return nil
		}
		return *p
	case *bool:
		if p == nil {
			return nil
		}
		return *p
	case *time.Time:
		if p == nil {
			return nil
		}
		return *p
	}
	return v
}

func toText(vt fieldmap.ValueType, raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return nil, fail(vt, raw, "not a scalar")
}

// numeric returns the float value of numbers and numeric strings.
func numeric(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func toInteger(raw interface{}) (interface{}, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, nil
		}
	}

	f, ok := numeric(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fail(fieldmap.TypeInteger, raw, "not a number")
	}
	if f != math.Trunc(f) {
		return nil, fail(fieldmap.TypeInteger, raw, "not an integral value")
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return nil, fail(fieldmap.TypeInteger, raw, "out of int64 range")
	}
	return int64(f), nil
}

func toDecimal(raw interface{}) (interface{}, error) {
	f, ok := numeric(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fail(fieldmap.TypeDecimal, raw, "not a number")
	}
	return f, nil
}

func toBool(raw interface{}) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return truthy[strings.ToLower(strings.TrimSpace(v))]
	case int:
		return v == 1
	case int64:
		return v == 1
	case float64:
		return v == 1
	case json.Number:
		return v.String() == "1"
	}
	return false
}

// toDate accepts ISO-8601 dates and date-times, epoch milliseconds as numbers
// or numeric strings, and time.Time. The calendar date is taken as written in
// the value's own offset, then pinned to UTC midnight.
func toDate(raw interface{}) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return dateOnly(v), nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range dateTimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return dateOnly(t), nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(ms), nil
		}
		return time.Time{}, fail(fieldmap.TypeDate, raw, "unrecognised date format")
	}

	f, ok := numeric(raw)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fail(fieldmap.TypeDate, raw, "not a date")
	}
	return fromEpochMillis(int64(f)), nil
}

func fromEpochMillis(ms int64) time.Time {
	return dateOnly(time.UnixMilli(ms).UTC())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
