package trial

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Field is a single named value recorded for a trial.
type Field struct {
	Key   string
	Value interface{}
}

// Trial is the data recorded for a single trial of an experiment.
//
// Fields keep the order in which their keys were first set, which is
// the column order used by the flat export.
type Trial struct {
	keys   []string
	values map[string]interface{}
}

// New returns a Trial containing the provided fields, in order.
func New(fields ...Field) Trial {
	t := Trial{
		values: make(map[string]interface{}, len(fields)),
	}
	for _, f := range fields {
		t.Set(f.Key, f.Value)
	}
	return t
}

// Set sets the value for key. Updating an existing key does not change
// its position.
func (t *Trial) Set(key string, value interface{}) {
	if t.values == nil {
		t.values = make(map[string]interface{})
	}
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns the value for key, and whether or not it was set.
func (t Trial) Get(key string) (interface{}, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Keys returns the trial's keys in insertion order.
func (t Trial) Keys() []string {
	keys := make([]string, len(t.keys))
	copy(keys, t.keys)
	return keys
}

// Fields returns the trial's fields in insertion order.
func (t Trial) Fields() []Field {
	fields := make([]Field, len(t.keys))
	for i, k := range t.keys {
		fields[i] = Field{Key: k, Value: t.values[k]}
	}
	return fields
}

// Len returns the number of fields in the trial.
func (t Trial) Len() int {
	return len(t.keys)
}

// MarshalJSON implements json.Marshaler, keeping key order.
func (t Trial) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, k := range t.keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := encodeJSON(k)
		if err != nil {
			return nil, err
		}
		vb, err := encodeJSON(t.values[k])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %q", k)
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// encodeJSON encodes v compactly without escaping HTML characters, matching
// JSON.stringify.
func encodeJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

func (t Trial) clone() Trial {
	return New(t.Fields()...)
}

// ParseJSON parses a JSON data export (an array of trial objects) into
// trials, preserving the key order of each object. Nested objects and
// arrays are kept as json.RawMessage so their key order survives export.
func ParseJSON(b []byte) ([]Trial, error) {
	if !gjson.ValidBytes(b) {
		return nil, errors.New("invalid json")
	}

	root := gjson.ParseBytes(b)
	if !root.IsArray() {
		return nil, errors.New("expected a json array of trials")
	}

	var trials []Trial
	var parseErr error
	root.ForEach(func(idx, value gjson.Result) bool {
		if !value.IsObject() {
			parseErr = errors.Errorf("trial %d is not a json object", len(trials))
			return false
		}

		t := New()
		value.ForEach(func(key, v gjson.Result) bool {
			if v.IsObject() || v.IsArray() {
				t.Set(key.String(), json.RawMessage(v.Raw))
			} else {
				t.Set(key.String(), v.Value())
			}
			return true
		})
		trials = append(trials, t)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	return trials, nil
}
