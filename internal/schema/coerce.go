package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// GraphTimeLayout is the timestamp format the Graph API emits.
const GraphTimeLayout = "2006-01-02T15:04:05-0700"

var timeLayouts = []string{GraphTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

// ParseGraphTime parses Graph API timestamps ("2025-01-02T08:00:00+0000")
// and RFC 3339 variants, returning UTC.
func ParseGraphTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// Coerce converts a decoded JSON value into the Go value bound for a column
// of type ct. Values that cannot be represented become nil.
func Coerce(ct ColumnType, v any) any {
	if v == nil {
		return nil
	}
	switch ct {
	case BigInt:
		if f, ok := toFloat(v); ok {
			return int64(math.Round(f))
		}
		return nil
	case Double:
		if f, ok := toFloat(v); ok {
			return f
		}
		return nil
	case Bool:
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if p, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return p
			}
		}
		return nil
	case Timestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC()
		case string:
			if p, err := ParseGraphTime(t); err == nil {
				return p
			}
		}
		return nil
	case Date:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format("2006-01-02")
		case string:
			if p, err := ParseGraphTime(t); err == nil {
				return p.Format("2006-01-02")
			}
		}
		return nil
	case JSON:
		if s, ok := v.(string); ok {
			return s
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return toText(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.UTC().Format(time.RFC3339)
	case map[string]any, []any:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	default:
		return fmt.Sprint(s)
	}
}

// Normalize projects r onto the table's columns, coercing each value.
// Fields the table does not declare are dropped; undeclared columns are nil.
func (t Table) Normalize(r Row) []any {
	out := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = Coerce(c.Type, r[c.Name])
	}
	return out
}
