package coercion

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripbuilder/crmsync/internal/fieldmap"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestToLocal_Date(t *testing.T) {
	cases := []struct {
		name string
		raw  interface{}
		want time.Time
	}{
		{"iso date-time with millis", "2025-06-01T00:00:00.000Z", date(2025, 6, 1)},
		{"iso date", "2025-06-01", date(2025, 6, 1)},
		{"offset keeps written calendar date", "2025-06-01T22:30:00-05:00", date(2025, 6, 1)},
		{"epoch millis number", float64(1748736000000), date(2025, 6, 1)},
		{"epoch millis json number", json.Number("1748779200000"), date(2025, 6, 1)},
		{"epoch millis string", "1748736000000", date(2025, 6, 1)},
		{"epoch millis int64", int64(1748736000000), date(2025, 6, 1)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToLocal(fieldmap.TypeDate, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToLocal_DateFailureIsCoercionError(t *testing.T) {
	_, err := ToLocal(fieldmap.TypeDate, "next tuesday")
	require.Error(t, err)

	var cerr *FieldCoercionError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, fieldmap.TypeDate, cerr.ValueType)
	assert.Equal(t, "next tuesday", cerr.Raw)
}

func TestToLocal_BlankIsNil(t *testing.T) {
	for _, vt := range []fieldmap.ValueType{fieldmap.TypeString, fieldmap.TypeDate, fieldmap.TypeInteger, fieldmap.TypeBoolean} {
		got, err := ToLocal(vt, nil)
		assert.NoError(t, err)
		assert.Nil(t, got)

		got, err = ToLocal(vt, "   ")
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestToLocal_Boolean_AllowList(t *testing.T) {
	truthy := []interface{}{true, "true", "yes", "1", 1, float64(1), "TRUE", " Yes "}
	for _, raw := range truthy {
		got, err := ToLocal(fieldmap.TypeBoolean, raw)
		require.NoError(t, err)
		assert.Equal(t, true, got, "%#v should be truthy", raw)
	}

	falsy := []interface{}{false, "false", "no", "0", 0, "y", "on", "tru", float64(2), []string{"true"}}
	for _, raw := range falsy {
		got, err := ToLocal(fieldmap.TypeBoolean, raw)
		require.NoError(t, err)
		assert.Equal(t, false, got, "%#v should be falsy", raw)
	}
}

func TestToLocal_Integer(t *testing.T) {
	got, err := ToLocal(fieldmap.TypeInteger, "12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = ToLocal(fieldmap.TypeInteger, "12.0")
	require.NoError(t, err)
	assert.Equal(t, int64(12), got)

	got, err = ToLocal(fieldmap.TypeInteger, float64(40))
	require.NoError(t, err)
	assert.Equal(t, int64(40), got)

	_, err = ToLocal(fieldmap.TypeInteger, "12.5")
	assert.Error(t, err)

	_, err = ToLocal(fieldmap.TypeInteger, "twelve")
	assert.Error(t, err)
}

func TestToLocal_IntegerOutOfRange(t *testing.T) {
	for _, raw := range []interface{}{"1e20", float64(1e19), float64(-1e19), json.Number("9223372036854775808")} {
		_, err := ToLocal(fieldmap.TypeInteger, raw)
		var cerr *FieldCoercionError
		require.True(t, errors.As(err, &cerr), "%#v", raw)
		assert.Equal(t, "out of int64 range", cerr.Reason)
	}

	got, err := ToLocal(fieldmap.TypeInteger, "9223372036854775807")
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)
}

// Spellings are compared after trimming and lower-casing, so "TRUE" and
// " Yes " count as true; anything outside the allow-list is false.
func TestToLocal_BooleanIgnoresCaseAndSpace(t *testing.T) {
	for _, raw := range []string{"TRUE", "True", " Yes ", "YES", " 1 "} {
		got, err := ToLocal(fieldmap.TypeBoolean, raw)
		require.NoError(t, err)
		assert.Equal(t, true, got, "%q", raw)
	}
	for _, raw := range []string{"FALSE", "Y", "On", "t"} {
		got, err := ToLocal(fieldmap.TypeBoolean, raw)
		require.NoError(t, err)
		assert.Equal(t, false, got, "%q", raw)
	}
}

func TestToLocal_Decimal(t *testing.T) {
	got, err := ToLocal(fieldmap.TypeDecimal, "4999.50")
	require.NoError(t, err)
	assert.Equal(t, 4999.5, got)

	_, err = ToLocal(fieldmap.TypeDecimal, map[string]interface{}{"amount": 1})
	assert.Error(t, err)
}

func TestToLocal_Text(t *testing.T) {
	got, err := ToLocal(fieldmap.TypeSingleOption, "Adventure")
	require.NoError(t, err)
	assert.Equal(t, "Adventure", got)

	got, err = ToLocal(fieldmap.TypeString, float64(42))
	require.NoError(t, err)
	assert.Equal(t, "42", got)

	_, err = ToLocal(fieldmap.TypeLongText, []interface{}{"a", "b"})
	assert.Error(t, err)
}

func TestToRemote_DateAlwaysDateOnly(t *testing.T) {
	ts := time.Date(2025, 6, 1, 17, 45, 0, 0, time.UTC)
	got, err := ToRemote(fieldmap.TypeDate, &ts)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", got)

	var nilDate *time.Time
	got, err = ToRemote(fieldmap.TypeDate, nilDate)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRoundTrip_CanonicalValues(t *testing.T) {
	cases := []struct {
		vt  fieldmap.ValueType
		raw interface{}
	}{
		{fieldmap.TypeString, "Iceland Explorer 2025"},
		{fieldmap.TypeLongText, "line one\nline two"},
		{fieldmap.TypeSingleOption, "Double"},
		{fieldmap.TypeDate, "2025-06-01"},
		{fieldmap.TypeInteger, int64(12)},
		{fieldmap.TypeDecimal, 1250.75},
		{fieldmap.TypeBoolean, "true"},
		{fieldmap.TypeBoolean, "false"},
	}

	for _, tc := range cases {
		local, err := ToLocal(tc.vt, tc.raw)
		require.NoError(t, err, tc.vt)
		remote, err := ToRemote(tc.vt, local)
		require.NoError(t, err, tc.vt)
		assert.Equal(t, tc.raw, remote, "round trip of %s", tc.vt)
	}
}

func TestRoundTrip_DocumentedLossyCases(t *testing.T) {
	// Epoch millis keep only the calendar date.
	local, err := ToLocal(fieldmap.TypeDate, float64(1748779200000)) // 2025-06-01T12:00:00Z
	require.NoError(t, err)
	remote, err := ToRemote(fieldmap.TypeDate, local)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", remote)

	// Boolean spellings normalise.
	local, err = ToLocal(fieldmap.TypeBoolean, "yes")
	require.NoError(t, err)
	remote, err = ToRemote(fieldmap.TypeBoolean, local)
	require.NoError(t, err)
	assert.Equal(t, "true", remote)
}
