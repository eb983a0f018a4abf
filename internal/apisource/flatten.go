package apisource

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Flatten turns a JSON object into a record. Nested objects become dotted
// fields ("customer.id"); arrays of scalars are joined with ", " and
// arrays holding objects are kept as raw JSON.
func Flatten(obj gjson.Result) harvest.Record {
	var fields []harvest.Field
	flattenInto(&fields, "", obj)
	return harvest.NewRecord(fields...)
}

func flattenInto(fields *[]harvest.Field, prefix string, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if prefix != "" {
			name = prefix + "." + name
		}
		if value.IsObject() {
			flattenInto(fields, name, value)
			return true
		}
		*fields = append(*fields, harvest.Field{Name: name, Value: scalar(value)})
		return true
	})
}

func scalar(v gjson.Result) any {
	switch v.Type {
	case gjson.Null:
		return nil
	case gjson.True, gjson.False:
		return v.Bool()
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return v.Float()
		}
		return v.Int()
	case gjson.String:
		return v.String()
	}

	if v.IsArray() {
		items := v.Array()
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if item.IsObject() || item.IsArray() {
				return v.Raw
			}
			parts = append(parts, item.String())
		}
		return strings.Join(parts, ", ")
	}
	return v.Raw
}

// Records flattens every object in the array at path.
func Records(body []byte, path string) []harvest.Record {
	var out []harvest.Record
	gjson.GetBytes(body, path).ForEach(func(_, value gjson.Result) bool {
		if value.IsObject() {
			out = append(out, Flatten(value))
		}
		return true
	})
	return out
}

// Handles wraps records as complete handles, referenced by their id field
// when present.
func Handles(records []harvest.Record, ref string) []harvest.RecordHandle {
	handles := make([]harvest.RecordHandle, len(records))
	for i, r := range records {
		id := r.String("id")
		if id == "" {
			id = ref
		} else {
			id = ref + "#" + id
		}
		handles[i] = harvest.Completed(id, r)
	}
	return handles
}
