// Package payload resolves configured literal/expression values into
// runtime values and compares them against decoded message payloads.
package payload

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	glua "github.com/yuin/gopher-lua"
)

// Spec is a configured value: a literal or expression plus its declared
// type. Supported types: str, num, bool, json, lua.
type Spec struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// Resolve converts a Spec into its runtime value once, at startup.
func Resolve(spec Spec) (any, error) {
	switch spec.Type {
	case "", "str":
		return spec.Value, nil
	case "num":
		v, err := strconv.ParseFloat(spec.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid num value %q: %w", spec.Value, err)
		}
		return v, nil
	case "bool":
		v, err := strconv.ParseBool(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid bool value %q: %w", spec.Value, err)
		}
		return v, nil
	case "json":
		var v any
		if err := json.Unmarshal([]byte(spec.Value), &v); err != nil {
			return nil, fmt.Errorf("invalid json value %q: %w", spec.Value, err)
		}
		return v, nil
	case "lua":
		return evalLua(spec.Value)
	default:
		return nil, fmt.Errorf("unknown value type %q", spec.Type)
	}
}

// evalLua evaluates an expression on a throwaway Lua VM and converts
// the result to a plain Go value.
func evalLua(expr string) (any, error) {
	L := glua.NewState()
	defer L.Close()

	if err := L.DoString("return " + expr); err != nil {
		return nil, fmt.Errorf("lua expression failed: %w", err)
	}
	v := L.Get(-1)
	L.Pop(1)
	return luaToGo(v), nil
}

// luaToGo converts a Lua value into the same shapes encoding/json
// produces, so resolved values compare cleanly against decoded payloads.
func luaToGo(v glua.LValue) any {
	switch lv := v.(type) {
	case *glua.LNilType:
		return nil
	case glua.LBool:
		return bool(lv)
	case glua.LNumber:
		return float64(lv)
	case glua.LString:
		return string(lv)
	case *glua.LTable:
		// Array part first; fall back to a map when keyed.
		maxN := lv.MaxN()
		if maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, luaToGo(lv.RawGetInt(i)))
			}
			return arr
		}
		m := make(map[string]any)
		lv.ForEach(func(k, val glua.LValue) {
			m[k.String()] = luaToGo(val)
		})
		return m
	default:
		return v.String()
	}
}

// Equal deep-compares a decoded payload with a resolved value. Numeric
// values are unified to float64 first, matching JSON decoding.
func Equal(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return n.String()
		}
		return f
	case []any:
		out := make([]any, len(n))
		for i, e := range n {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[k] = normalize(e)
		}
		return out
	default:
		return v
	}
}
