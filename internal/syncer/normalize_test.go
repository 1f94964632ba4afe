package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringField_CoercesScalars(t *testing.T) {
	fields := map[string]any{
		"name":    "  Ivan  ",
		"count":   float64(42),
		"flag":    true,
		"nothing": nil,
		"obj":     map[string]any{"x": 1},
	}

	assert.Equal(t, "Ivan", stringField(fields, "name"))
	assert.Equal(t, "42", stringField(fields, "count"))
	assert.Equal(t, "true", stringField(fields, "flag"))
	assert.Equal(t, "", stringField(fields, "nothing"))
	assert.Equal(t, "", stringField(fields, "obj"))
	assert.Equal(t, "", stringField(fields, "missing"))
}

func TestBoolField_AcceptsCommonRepresentations(t *testing.T) {
	cases := []struct {
		raw   any
		value bool
		ok    bool
	}{
		{true, true, true},
		{false, false, true},
		{float64(1), true, true},
		{float64(0), false, true},
		{"true", true, true},
		{"Yes", true, true},
		{"0", false, true},
		{"no", false, true},
		{"maybe", false, false},
		{nil, false, false},
	}
	for _, tc := range cases {
		value, ok := boolField(map[string]any{"k": tc.raw}, "k")
		assert.Equal(t, tc.ok, ok, "raw=%v", tc.raw)
		assert.Equal(t, tc.value, value, "raw=%v", tc.raw)
	}
}

func TestNumberField_ParsesStringsAndNumbers(t *testing.T) {
	fields := map[string]any{
		"f": float64(54.5),
		"s": " 70 ",
		"x": "not a number",
	}

	v, ok := numberField(fields, "f")
	require.True(t, ok)
	assert.Equal(t, 54.5, v)

	v, ok = numberField(fields, "s")
	require.True(t, ok)
	assert.Equal(t, 70.0, v)

	_, ok = numberField(fields, "x")
	assert.False(t, ok)
	_, ok = numberField(fields, "missing")
	assert.False(t, ok)
}

func TestFloatsWithinTolerance(t *testing.T) {
	assert.True(t, floatsWithinTolerance(50, 54, progressTolerance))
	assert.True(t, floatsWithinTolerance(50, 45, progressTolerance))
	assert.True(t, floatsWithinTolerance(50, 55, progressTolerance))
	assert.False(t, floatsWithinTolerance(50, 55.1, progressTolerance))
	assert.False(t, floatsWithinTolerance(50, 70, progressTolerance))
}

func TestParseTimestamp_KnownLayouts(t *testing.T) {
	ts := parseTimestamp("2025-03-15T10:30:00Z")
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2025, 3, 15, 10, 30, 0, 0, time.UTC), ts.UTC())

	ts = parseTimestamp("2025-03-15T10:30:00")
	require.NotNil(t, ts)

	ts = parseTimestamp("2025-03-15 10:30:00")
	require.NotNil(t, ts)

	ts = parseTimestamp("2025-03-15")
	require.NotNil(t, ts)

	assert.Nil(t, parseTimestamp(""))
	assert.Nil(t, parseTimestamp("  "))
	assert.Nil(t, parseTimestamp("yesterday"))
	assert.Nil(t, parseTimestamp("15/03/2025"))
}
