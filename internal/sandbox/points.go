package sandbox

import (
	"time"

	"github.com/leapstack-labs/leapdash/pkg/core"
)

// Timestamp layouts accepted from ingestion transforms, tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DecodePoints validates the ingestion transform's declared output
// contract - an array of {timestamp, value, dimensions?} - and converts
// it to data points. Any structural violation is an invalid-return-shape
// error, never a silent coercion.
func DecodePoints(v any) ([]core.DataPoint, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, errf(KindInvalidReturnShape, "ingestion transform must return a list, got %T", v)
	}

	points := make([]core.DataPoint, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, errf(KindInvalidReturnShape, "point %d: expected object, got %T", i, item)
		}

		ts, err := decodeTimestamp(obj["timestamp"])
		if err != nil {
			return nil, errf(KindInvalidReturnShape, "point %d: %v", i, err)
		}

		value, ok := decodeNumber(obj["value"])
		if !ok {
			return nil, errf(KindInvalidReturnShape, "point %d: value must be a number, got %T", i, obj["value"])
		}

		var dims map[string]any
		if raw, present := obj["dimensions"]; present && raw != nil {
			dims, ok = raw.(map[string]any)
			if !ok {
				return nil, errf(KindInvalidReturnShape, "point %d: dimensions must be an object, got %T", i, raw)
			}
		}

		points = append(points, core.DataPoint{
			Timestamp:  ts,
			Value:      value,
			Dimensions: dims,
		})
	}

	return points, nil
}

func decodeTimestamp(v any) (time.Time, error) {
	switch ts := v.(type) {
	case string:
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, ts); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, errf(KindInvalidReturnShape, "unparseable timestamp %q", ts)
	case float64:
		return time.Unix(int64(ts), 0).UTC(), nil
	case int64:
		return time.Unix(ts, 0).UTC(), nil
	case nil:
		return time.Time{}, errf(KindInvalidReturnShape, "missing timestamp")
	default:
		return time.Time{}, errf(KindInvalidReturnShape, "timestamp must be a string or unix seconds, got %T", v)
	}
}

func decodeNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// DecodeChartConfig validates a chart transform's return value: it must
// be a JSON object.
func DecodeChartConfig(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errf(KindInvalidReturnShape, "chart transform must return an object, got %T", v)
	}
	return obj, nil
}
