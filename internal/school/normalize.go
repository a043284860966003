package school

import (
	"encoding/json"

	"github.com/pmaschool/school-admin-go/internal/odoo"
)

// Ref is a decoded Many2one: the backend serializes these as [id, name]
// or false when unset.
type Ref struct {
	ID   int64
	Name string
}

// many2one decodes the backend's [id, name] | false convention. Every
// normalizer goes through here instead of repeating the shape check.
func many2one(v any) (Ref, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < 2 {
		return Ref{}, false
	}
	id, ok := arr[0].(float64)
	if !ok {
		return Ref{}, false
	}
	name, _ := arr[1].(string)
	return Ref{ID: int64(id), Name: name}, true
}

// idList decodes a Many2many/One2many id list. Anything that is not a
// list of numbers comes back empty, never nil.
func idList(v any) []int64 {
	arr, ok := v.([]any)
	if !ok {
		return []int64{}
	}
	ids := make([]int64, 0, len(arr))
	for _, item := range arr {
		if f, ok := item.(float64); ok {
			ids = append(ids, int64(f))
		}
	}
	return ids
}

// str reads a string field, mapping the backend's false-means-empty
// convention to "".
func str(r odoo.Record, field string) string {
	s, _ := r[field].(string)
	return s
}

// strOr is str with a fallback for absent values.
func strOr(r odoo.Record, field, fallback string) string {
	if s, ok := r[field].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolean(r odoo.Record, field string) bool {
	b, _ := r[field].(bool)
	return b
}

func integer(r odoo.Record, field string) int64 {
	f, _ := r[field].(float64)
	return int64(f)
}

// commandSet builds the relational write command that replaces a
// Many2many with exactly the given ids ((6, 0, ids) in ORM terms).
func commandSet(ids []int64) []any {
	return []any{[]any{6, 0, ids}}
}

// jsonField decodes one of the backend's embedded JSON columns into T.
// The backend sometimes returns these as an object and sometimes as a
// string-encoded object; both decode, anything else yields nil.
func jsonField[T any](v any) *T {
	var data []byte
	switch value := v.(type) {
	case nil:
		return nil
	case bool:
		// false means the field is unset
		return nil
	case string:
		data = []byte(value)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		data = encoded
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return &out
}
