// Package scalars provides the built-in scalars every generated schema
// declares: Date, JSON and Number.
package scalars

import (
	"encoding/json"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"harmony-graphql/internal/document"
)

// Names lists the built-in scalars in print order.
var Names = []string{"Date", "JSON", "Number"}

// Builtins returns a fresh instance of every built-in scalar by name.
func Builtins() map[string]*graphql.Scalar {
	return map[string]*graphql.Scalar{
		"Date":   Date(),
		"JSON":   JSON(),
		"Number": Number(),
	}
}

// Date is a point in time serialized as an RFC 3339 string. Inputs may be
// RFC 3339 strings, plain dates or epoch milliseconds.
func Date() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Date",
		Description: "Date and time serialized as an RFC 3339 string.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC().Format(time.RFC3339Nano)
			case *time.Time:
				if v == nil {
					return nil
				}
				return v.UTC().Format(time.RFC3339Nano)
			case string:
				if parsed, ok := parseDate(v); ok {
					return parsed.Format(time.RFC3339Nano)
				}
				return nil
			default:
				if ms, ok := document.Float(v); ok {
					return time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
				}
				return nil
			}
		},
		ParseValue: func(value interface{}) interface{} {
			switch v := value.(type) {
			case time.Time:
				return v.UTC()
			case string:
				if parsed, ok := parseDate(v); ok {
					return parsed
				}
				return nil
			default:
				if ms, ok := document.Float(v); ok {
					return time.UnixMilli(int64(ms)).UTC()
				}
				return nil
			}
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.StringValue:
				if parsed, ok := parseDate(v.Value); ok {
					return parsed
				}
			case *ast.IntValue:
				if ms, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return time.UnixMilli(ms).UTC()
				}
			}
			return nil
		},
	})
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// JSON carries any JSON value. Output values are emitted as structured
// JSON, not as an encoded string. Objects serialize as documents so their
// key order survives encoding.
func JSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "JSON",
		Description: "Arbitrary JSON value.",
		Serialize: func(value interface{}) interface{} {
			switch v := value.(type) {
			case nil:
				return nil
			case json.RawMessage:
				var decoded interface{}
				if err := json.Unmarshal(v, &decoded); err != nil {
					slog.Default().Warn("failed to serialize JSON scalar", slog.String("error", err.Error()))
					return nil
				}
				return decoded
			default:
				return document.Normalize(v)
			}
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseJSONLiteral,
	})
}

func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return parsed
		}
		return nil
	case *ast.FloatValue:
		if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return parsed
		}
		return nil
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		out := make([]interface{}, 0, len(v.Values))
		for _, elem := range v.Values {
			out = append(out, parseJSONLiteral(elem))
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return out
	}
	return nil
}

// Number is a numeric value wider than Int. Integral values are kept as
// int64; anything else is a float64.
func Number() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "Number",
		Description: "64-bit integer or floating point number.",
		Serialize:   coerceNumber,
		ParseValue:  coerceNumber,
		ParseLiteral: func(valueAST ast.Value) interface{} {
			switch v := valueAST.(type) {
			case *ast.IntValue:
				if parsed, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
					return parsed
				}
				if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
					return parsed
				}
			case *ast.FloatValue:
				if parsed, err := strconv.ParseFloat(v.Value, 64); err == nil {
					return normalizeFloat(parsed)
				}
			}
			return nil
		},
	})
}

func coerceNumber(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(parsed) && !math.IsInf(parsed, 0) {
			return normalizeFloat(parsed)
		}
		return nil
	case bool:
		return nil
	}
	switch n := document.Normalize(value).(type) {
	case int64:
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil
		}
		return normalizeFloat(n)
	}
	return nil
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// Passthrough is a scalar that accepts and emits any JSON value unchanged.
// It backs scalars declared in a schema without an implementation, and the
// federation _Any scalar.
func Passthrough(name string) *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name: name,
		Serialize: func(value interface{}) interface{} {
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseJSONLiteral,
	})
}
