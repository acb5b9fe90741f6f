// Package unpack decodes JSON into trees of Go values whose interface-typed
// fields hold one of several concrete struct types.  Each concrete type
// names itself with an "unpack" tag on the field that identifies it in
// JSON, e.g.,
//
//	type Call struct {
//		Kind string `json:"kind" unpack:""`
//		...
//	}
//
// An empty tag value stands for the type's name.
package unpack

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Reflector maps an unpack key (the JSON field holding the type name) and
// a type name to a concrete type.
type Reflector map[string]map[string]reflect.Type

func New(templates ...interface{}) Reflector {
	return make(Reflector).Init(templates...)
}

func (r Reflector) Init(templates ...interface{}) Reflector {
	for _, t := range templates {
		r.Add(t)
	}
	return r
}

// Add registers the type of template under the name given by its unpack
// tag.  It panics if the type has no valid unpack tag.
func (r Reflector) Add(template interface{}) Reflector {
	typ := reflect.TypeOf(template)
	key, val, err := structToUnpackRule(typ)
	if err != nil {
		panic(err)
	}
	if key == "" {
		panic(fmt.Sprintf("unpack: type %s has no unpack tag", typ))
	}
	return r.addAs(key, val, typ)
}

// AddAs is like Add but registers the type under name instead of the name
// in its tag.
func (r Reflector) AddAs(template interface{}, name string) Reflector {
	typ := reflect.TypeOf(template)
	key, _, err := structToUnpackRule(typ)
	if err != nil {
		panic(err)
	}
	return r.addAs(key, name, typ)
}

func (r Reflector) addAs(key, val string, typ reflect.Type) Reflector {
	m, ok := r[key]
	if !ok {
		m = make(map[string]reflect.Type)
		r[key] = m
	}
	m[val] = typ
	return r
}

// Unmarshal decodes buf.  A JSON object becomes a pointer to the concrete
// type it names and an array becomes a []interface{} of such values.
func (r Reflector) Unmarshal(buf []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(buf, &v); err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]interface{}, 0, len(v))
		for _, elem := range v {
			o, err := r.UnmarshalObject(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		return out, nil
	}
	return r.UnmarshalObject(v)
}

// UnmarshalObject converts a generic JSON object, as decoded by
// encoding/json into a map[string]interface{}, into the concrete type it
// names.
func (r Reflector) UnmarshalObject(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unpack: expected a JSON object, got %T", v)
	}
	typ, err := r.lookup(m)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(typ)
	if err := r.decode(ptr.Elem(), m); err != nil {
		return nil, err
	}
	return ptr.Interface(), nil
}

func (r Reflector) lookup(m map[string]interface{}) (reflect.Type, error) {
	for key, types := range r {
		val, ok := m[key].(string)
		if !ok {
			continue
		}
		if typ, ok := types[val]; ok {
			return typ, nil
		}
		return nil, fmt.Errorf("unpack: unknown %s %q", key, val)
	}
	return nil, fmt.Errorf("unpack: JSON object has no type key")
}

func (r Reflector) decode(dst reflect.Value, v interface{}) error {
	if v == nil {
		return nil
	}
	switch dst.Kind() {
	case reflect.Interface:
		o, err := r.UnmarshalObject(v)
		if err != nil {
			return err
		}
		ov := reflect.ValueOf(o)
		if !ov.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("unpack: %s does not implement %s", ov.Type(), dst.Type())
		}
		dst.Set(ov)
	case reflect.Ptr:
		elem := reflect.New(dst.Type().Elem())
		if err := r.decode(elem.Elem(), v); err != nil {
			return err
		}
		dst.Set(elem)
	case reflect.Struct:
		m, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("unpack: cannot decode %T into %s", v, dst.Type())
		}
		typ := dst.Type()
		for k := 0; k < typ.NumField(); k++ {
			f := typ.Field(k)
			if !f.IsExported() {
				continue
			}
			name, ok := jsonFieldName(f)
			if !ok {
				name = f.Name
			}
			if err := r.decode(dst.Field(k), m[name]); err != nil {
				return fmt.Errorf("%s.%s: %w", typ.Name(), f.Name, err)
			}
		}
	case reflect.Slice:
		list, ok := v.([]interface{})
		if !ok {
			return fmt.Errorf("unpack: cannot decode %T into %s", v, dst.Type())
		}
		s := reflect.MakeSlice(dst.Type(), len(list), len(list))
		for k, elem := range list {
			if err := r.decode(s.Index(k), elem); err != nil {
				return err
			}
		}
		dst.Set(s)
	default:
		// Scalars take the encoding/json conversion rules.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst.Addr().Interface())
	}
	return nil
}
