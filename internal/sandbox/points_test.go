package sandbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePoints(t *testing.T) {
	out := []any{
		map[string]any{"timestamp": "2026-01-15T00:00:00Z", "value": float64(42)},
		map[string]any{"timestamp": "2026-01-16", "value": int64(7)},
		map[string]any{"timestamp": float64(1768608000), "value": float64(1.5), "dimensions": map[string]any{"country": "DE"}},
	}

	points, err := DecodePoints(out)
	require.NoError(t, err)
	require.Len(t, points, 3)

	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), points[0].Timestamp)
	assert.Equal(t, float64(42), points[0].Value)
	assert.Nil(t, points[0].Dimensions)

	assert.Equal(t, time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC), points[1].Timestamp)
	assert.Equal(t, float64(7), points[1].Value)

	assert.Equal(t, time.Unix(1768608000, 0).UTC(), points[2].Timestamp)
	assert.Equal(t, "DE", points[2].Dimensions["country"])
}

func TestDecodePoints_DateTimeLayout(t *testing.T) {
	points, err := DecodePoints([]any{
		map[string]any{"timestamp": "2026-01-15 13:45:00", "value": float64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 13, 45, 0, 0, time.UTC), points[0].Timestamp)
}

func TestDecodePoints_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   any
	}{
		{"not a list", map[string]any{"timestamp": "2026-01-01", "value": 1.0}},
		{"element not an object", []any{"nope"}},
		{"missing timestamp", []any{map[string]any{"value": 1.0}}},
		{"unparseable timestamp", []any{map[string]any{"timestamp": "January 15th", "value": 1.0}}},
		{"missing value", []any{map[string]any{"timestamp": "2026-01-01"}}},
		{"string value", []any{map[string]any{"timestamp": "2026-01-01", "value": "3"}}},
		{"scalar dimensions", []any{map[string]any{"timestamp": "2026-01-01", "value": 1.0, "dimensions": "DE"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePoints(tt.in)
			require.Error(t, err)
			assert.Equal(t, KindInvalidReturnShape, KindOf(err))
		})
	}
}

func TestDecodePoints_Empty(t *testing.T) {
	points, err := DecodePoints([]any{})
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestDecodeChartConfig(t *testing.T) {
	obj, err := DecodeChartConfig(map[string]any{"type": "line"})
	require.NoError(t, err)
	assert.Equal(t, "line", obj["type"])

	_, err = DecodeChartConfig([]any{"line"})
	require.Error(t, err)
	assert.Equal(t, KindInvalidReturnShape, KindOf(err))
}
