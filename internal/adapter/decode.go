package adapter

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"

	"harmony-graphql/internal/document"
)

var documentType = reflect.TypeOf(&document.Document{})

// documentHook turns decoded input objects into documents.
func documentHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != documentType {
		return data, nil
	}
	switch v := data.(type) {
	case *document.Document:
		return v, nil
	case map[string]any:
		return document.FromMap(v), nil
	case nil:
		return (*document.Document)(nil), nil
	}
	return nil, fmt.Errorf("expected an object, got %s", from)
}

// DecodeArgs decodes GraphQL arguments into out. Scalars are weakly typed
// so a single id decodes into a list and numbers decode across widths.
func DecodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       documentHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create args decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
