package dispatch

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"querygate/internal/catalog"
	apperrors "querygate/pkg/errors"
)

// timestampLayouts are tried in order; the first successful parse wins.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05.000",
	"2006-01-02",
}

// Bind coerces untyped request values into the positional bind list of the
// query. Parameters resolve in declaration order; a required parameter that
// is missing or empty-string is a bad request.
func Bind(q catalog.QuerySpec, params map[string]interface{}) ([]interface{}, error) {
	binds := make([]interface{}, 0, len(q.Parameters))
	for _, p := range q.Parameters {
		value, ok := params[p.Name]
		if !ok || isEmpty(value) {
			if p.Required {
				return nil, apperrors.NewBadRequest(fmt.Sprintf("Required parameter missing: %s", p.Name))
			}
			binds = append(binds, nil)
			continue
		}

		typed, err := coerce(p, value)
		if err != nil {
			return nil, err
		}
		binds = append(binds, typed)
	}
	return binds, nil
}

func isEmpty(v interface{}) bool {
	s, ok := v.(string)
	return ok && s == ""
}

// coerce converts one request value to the parameter's SQL type. Values
// already typed by the JSON codec are accepted without re-coercion when
// compatible.
func coerce(p catalog.QueryParamSpec, value interface{}) (interface{}, error) {
	switch p.Type {
	case catalog.ParamString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", value), nil

	case catalog.ParamInteger:
		switch v := value.(type) {
		case string:
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return nil, badParam(p.Name, v, "integer")
			}
			return int32(n), nil
		case float64:
			if v != float64(int64(v)) {
				return nil, badParam(p.Name, v, "integer")
			}
			return int32(v), nil
		case int:
			return int32(v), nil
		case int32:
			return v, nil
		case int64:
			return int32(v), nil
		}
		return nil, badParam(p.Name, value, "integer")

	case catalog.ParamLong:
		switch v := value.(type) {
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, badParam(p.Name, v, "long")
			}
			return n, nil
		case float64:
			if v != float64(int64(v)) {
				return nil, badParam(p.Name, v, "long")
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		}
		return nil, badParam(p.Name, value, "long")

	case catalog.ParamDecimal:
		switch v := value.(type) {
		case string:
			// Validate only; the verbatim string goes to the driver so
			// precision is never narrowed through a float.
			if _, ok := new(big.Rat).SetString(v); !ok {
				return nil, badParam(p.Name, v, "decimal")
			}
			return v, nil
		case float64:
			return v, nil
		}
		return nil, badParam(p.Name, value, "decimal")

	case catalog.ParamBoolean:
		switch v := value.(type) {
		case string:
			if strings.EqualFold(v, "true") {
				return true, nil
			}
			if strings.EqualFold(v, "false") {
				return false, nil
			}
			return nil, badParam(p.Name, v, "boolean")
		case bool:
			return v, nil
		}
		return nil, badParam(p.Name, value, "boolean")

	case catalog.ParamTimestamp:
		switch v := value.(type) {
		case string:
			for _, layout := range timestampLayouts {
				if t, err := time.Parse(layout, v); err == nil {
					return t, nil
				}
			}
			return nil, badParam(p.Name, v, "timestamp")
		case time.Time:
			return v, nil
		}
		return nil, badParam(p.Name, value, "timestamp")
	}

	return nil, apperrors.NewInternal(fmt.Sprintf("unsupported parameter type '%s' for '%s'", p.Type, p.Name))
}

func badParam(name string, value interface{}, want string) error {
	return apperrors.NewBadRequest(fmt.Sprintf("Invalid value '%v' for parameter '%s': expected %s", value, name, want))
}
