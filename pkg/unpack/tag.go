package unpack

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var ErrTag = errors.New(`unpack tag must be "" or the name of the type`)

func jsonFieldName(f reflect.StructField) (string, bool) {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name, true
	}
	return name, true
}

// structToUnpackRule finds the field of typ carrying an unpack tag and
// returns its JSON name and the type name the tag gives, which defaults to
// the name of typ.  It also checks that no two fields share a JSON name,
// which encoding/json silently allows.  The key is empty if typ has no
// unpack tag.
func structToUnpackRule(typ reflect.Type) (string, string, error) {
	if typ.Kind() != reflect.Struct {
		return "", "", errors.New("cannot unpack into non-struct")
	}
	names := make(map[string]struct{})
	var key, val string
	for k := 0; k < typ.NumField(); k++ {
		f := typ.Field(k)
		name, ok := jsonFieldName(f)
		if ok {
			if _, dup := names[name]; dup {
				return "", "", fmt.Errorf("json field tag %q in struct type %q not unique", name, typ.Name())
			}
			names[name] = struct{}{}
		}
		tag, ok := f.Tag.Lookup("unpack")
		if !ok {
			continue
		}
		if strings.Contains(tag, ",") {
			return "", "", ErrTag
		}
		if key != "" {
			return "", "", fmt.Errorf("unpack key appears twice (for JSON field %s and %s)", key, name)
		}
		if name == "" {
			name = f.Name
		}
		key, val = name, tag
		if val == "" {
			val = typ.Name()
		}
	}
	return key, val, nil
}
