package filter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type ParamKind int

const (
	Float ParamKind = iota
	Int
	String
)

func (k ParamKind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	case String:
		return "string"
	}
	return "unknown"
}

// Param declares one configuration value of a filter type.
type Param struct {
	Name     string
	Kind     ParamKind
	Required bool
	// Default is used when an optional parameter is not given.
	Default interface{}
}

func (k ParamKind) coerce(v interface{}) (interface{}, error) {
	switch k {
	case Float:
		switch v := v.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		}
	case Int:
		switch v := v.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == math.Trunc(v) && !math.IsInf(v, 0) {
				return int(v), nil
			}
		}
	case String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%v (%T) is not a %s", v, v, k)
}

// Params holds the validated parameter values of a filter instance.  Values
// are float64, int, or string according to the declared ParamKind.
type Params map[string]interface{}

func (p Params) Float(name string) float64 {
	v, _ := p[name].(float64)
	return v
}

func (p Params) Int(name string) int {
	v, _ := p[name].(int)
	return v
}

func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Canonical renders the parameters in a stable form suitable for hashing.
func (p Params) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		switch v := p[k].(type) {
		case float64:
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		case int:
			b.WriteString(strconv.Itoa(v))
		case string:
			b.WriteString(strconv.Quote(v))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
		b.WriteByte(';')
	}
	return b.String()
}

// Bind validates raw parameter values against the spec's declarations,
// rejecting unknown keys, missing required keys, and values of the wrong
// kind, and filling in defaults.
func (s *Spec) Bind(raw map[string]interface{}) (Params, error) {
	declared := make(map[string]Param, len(s.Params))
	for _, p := range s.Params {
		declared[p.Name] = p
	}
	// Report unknown keys in a deterministic order.
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Params, len(s.Params))
	for _, k := range keys {
		p, ok := declared[k]
		if !ok {
			return nil, &InvalidParameterError{Type: s.Name, Param: k, Reason: "unknown parameter"}
		}
		v, err := p.Kind.coerce(raw[k])
		if err != nil {
			return nil, &InvalidParameterError{Type: s.Name, Param: k, Reason: err.Error()}
		}
		out[k] = v
	}
	for _, p := range s.Params {
		if _, ok := out[p.Name]; ok {
			continue
		}
		if p.Required {
			return nil, &InvalidParameterError{Type: s.Name, Param: p.Name, Reason: "missing required parameter"}
		}
		if p.Default != nil {
			v, _ := p.Kind.coerce(p.Default)
			out[p.Name] = v
		}
	}
	return out, nil
}
