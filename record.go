package nanofetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Field is one named value of a Record.
// Value holds either a float64 or a string.
type Field struct {
	Name  string
	Value any
}

// Record is the flat, ordered set of fields extracted from a successful response.
// Field order follows the response document so that delimited sinks get a stable header.
type Record []Field

// Get returns the value of the named field.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// String returns the named field formatted as text, or "" if absent.
func (r Record) String(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// Float returns the named field as a number.
// String values are parsed; ok is false when the field is absent or not numeric.
func (r Record) Float(name string) (float64, bool) {
	v, ok := r.Get(name)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Names returns the field names in order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// Strings returns every value formatted as text, in field order.
func (r Record) Strings() []string {
	values := make([]string, len(r))
	for i, f := range r {
		values[i] = formatValue(f.Value)
	}
	return values
}

// MarshalJSON encodes the record as a JSON object, keeping field order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the record, keeping document order.
// Numbers decode to float64 and every other value to a string.
func (r *Record) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid record JSON")
	}

	doc := gjson.ParseBytes(data)
	if doc.Type == gjson.Null {
		*r = nil
		return nil
	}
	if !doc.IsObject() {
		return fmt.Errorf("record must be a JSON object, got %s", doc.Type)
	}

	record := Record{}
	doc.ForEach(func(key, value gjson.Result) bool {
		record = append(record, Field{Name: key.String(), Value: fieldValue(value)})
		return true
	})
	*r = record
	return nil
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		b, _ := json.Marshal(val)
		return string(b)
	}
}

func fieldValue(res gjson.Result) any {
	switch res.Type {
	case gjson.Number:
		return res.Float()
	case gjson.String:
		return res.String()
	case gjson.True, gjson.False:
		return strconv.FormatBool(res.Bool())
	case gjson.Null:
		return ""
	default:
		return res.Raw
	}
}

// extractRecord builds a Record from a decoded body. The record starts with
// the query and the first weather description, followed by every member of
// the required field. ok is false when the required field is absent.
func extractRecord(query string, body gjson.Result, requiredField string) (Record, bool) {
	required := body.Get(gjson.Escape(requiredField))
	if !required.Exists() {
		return nil, false
	}

	record := Record{{Name: "city", Value: query}}
	if description := body.Get("weather.0.description"); description.Exists() {
		record = append(record, Field{Name: "weather", Value: description.String()})
	}

	if !required.IsObject() {
		return append(record, Field{Name: requiredField, Value: fieldValue(required)}), true
	}

	required.ForEach(func(key, value gjson.Result) bool {
		record = append(record, Field{Name: key.String(), Value: fieldValue(value)})
		return true
	})

	return record, true
}
