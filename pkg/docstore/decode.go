package docstore

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Decode copies document fields into out, which must be a pointer to a struct
// tagged with `doc:"..."`. The document id is exposed under the "id" key.
// RFC3339 strings decode into time.Time fields.
func Decode(doc Document, out interface{}) error {
	input := make(map[string]interface{}, len(doc.Fields)+1)
	for k, v := range doc.Fields {
		input[k] = v
	}
	input["id"] = doc.ID

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "doc",
		WeaklyTypedInput: true,
		Result:           out,
		DecodeHook:       stringToTimeHook,
	})
	if err != nil {
		return fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return nil
}

// DecodeAll decodes every document into a freshly allocated T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var item T
		if err := Decode(doc, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// stringToTimeHook parses RFC3339 strings; an empty string yields the zero time.
func stringToTimeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	raw := data.(string)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
