package client

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// MaxLimit is the largest sample size the sampling routes accept.
const MaxLimit = 300

// ParamType is a database parameter type such as I32, F64 or [F64].
type ParamType struct {
	Name string
	Elem *ParamType
}

func (t ParamType) String() string {
	if t.Elem != nil {
		return "[" + t.Elem.String() + "]"
	}
	return t.Name
}

var scalarTypes = map[string]bool{
	"String": true, "ID": true, "Bool": true,
	"I8": true, "I16": true, "I32": true, "I64": true,
	"U8": true, "U16": true, "U32": true, "U64": true, "U128": true,
	"F32": true, "F64": true,
}

// ParseParamType parses "I32", "[F64]" or the legacy "Array(F64)".
func ParseParamType(s string) (ParamType, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		inner, err := ParseParamType(s[1 : len(s)-1])
		if err != nil {
			return ParamType{}, err
		}
		return ParamType{Name: "Array", Elem: &inner}, nil
	case strings.HasPrefix(s, "Array(") && strings.HasSuffix(s, ")"):
		inner, err := ParseParamType(s[6 : len(s)-1])
		if err != nil {
			return ParamType{}, err
		}
		return ParamType{Name: "Array", Elem: &inner}, nil
	case scalarTypes[s]:
		return ParamType{Name: s}, nil
	}
	return ParamType{}, fmt.Errorf("unknown parameter type %q", s)
}

// ConvertParam turns a string typed by a user into the JSON value the
// query expects.
func ConvertParam(value string, t ParamType) (any, error) {
	wrap := func(v any, err error) (any, error) {
		if err != nil {
			return nil, fmt.Errorf("convert %q to %s: %w", value, t, err)
		}
		return v, nil
	}
	switch t.Name {
	case "String", "ID":
		return value, nil
	case "Bool":
		return wrap(cast.ToBoolE(value))
	case "I8", "I16", "I32":
		return wrap(cast.ToInt32E(value))
	case "I64":
		return wrap(cast.ToInt64E(value))
	case "U8", "U16", "U32":
		return wrap(cast.ToUint32E(value))
	case "U64", "U128":
		return wrap(cast.ToUint64E(value))
	case "F32", "F64":
		return wrap(cast.ToFloat64E(value))
	case "Array":
		if t.Elem == nil || (t.Elem.Name != "F64" && t.Elem.Name != "F32") {
			return nil, fmt.Errorf("convert %q to %s: array type not supported", value, t)
		}
		return wrap(parseFloatArray(value))
	}
	return nil, fmt.Errorf("convert %q: unknown type %s", value, t)
}

// parseFloatArray accepts a JSON array or a comma-separated list.
func parseFloatArray(value string) ([]float64, error) {
	var arr []float64
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr, nil
	}
	parts := strings.Split(value, ",")
	arr = make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := cast.ToFloat64E(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		arr = append(arr, f)
	}
	return arr, nil
}

// ConvertParams converts key=value strings using the endpoint's declared
// parameter types. Undeclared keys stay strings.
func ConvertParams(ep Endpoint, raw map[string]string) (map[string]any, error) {
	types := make(map[string]string, len(ep.Parameters))
	for _, p := range ep.Parameters {
		types[p.Name] = p.Type
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		typ, declared := types[k]
		if !declared {
			out[k] = v
			continue
		}
		pt, err := ParseParamType(typ)
		if err != nil {
			out[k] = v
			continue
		}
		converted, err := ConvertParam(v, pt)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}
