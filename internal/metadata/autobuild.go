package metadata

import (
	"reflect"
	"strings"
)

// buildAutoObject derives an Object Metadata from a struct's exported
// fields, for callers that never registered the type through ObjectFactory.
// A `meta:"name,opt"` tag overrides the archived name and marks a field
// optional; `meta:"-"` excludes it, matching the json/yaml convention the
// rest of this codebase already uses for wire structs.
func buildAutoObject(t reflect.Type) *Metadata {
	var props []Property
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" { // unexported
			continue
		}
		name, optional, skip := parseMetaTag(f)
		if skip {
			continue
		}
		props = append(props, Property{
			Name:     name,
			Optional: optional,
			Type:     OfType(f.Type),
			index:    []int{i},
		})
	}
	assignIntKeys(props)
	return &Metadata{
		kind:       KindObject,
		goType:     t,
		name:       t.String(),
		properties: props,
	}
}

func parseMetaTag(f reflect.StructField) (name string, optional bool, skip bool) {
	tag, ok := f.Tag.Lookup("meta")
	if !ok {
		return f.Name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] == "-" {
		return "", false, true
	}
	name = f.Name
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "opt" || opt == "optional" {
			optional = true
		}
	}
	return name, optional, false
}
