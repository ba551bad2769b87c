package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// documentSchema is the structural contract for an extracted document:
// which blocks must exist and which fields inside them are required. Value
// coercion (numbers arriving as strings and so on) happens afterwards, so
// the schema stays deliberately loose about leaf types.
func documentSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"metadata", "items", "totals"},
		"properties": map[string]any{
			"metadata": map[string]any{
				"type":     "object",
				"required": []any{"store", "date"},
				"properties": map[string]any{
					"store": map[string]any{"type": "string", "minLength": 1},
					"date":  map[string]any{"type": "string", "minLength": 1},
				},
			},
			"items": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type":     "object",
					"required": []any{"product"},
					"properties": map[string]any{
						"product": map[string]any{"type": "string", "minLength": 1},
					},
				},
			},
			"totals": map[string]any{
				"type":     "object",
				"required": []any{"total"},
			},
			"payment":    map[string]any{"type": "object"},
			"promotions": map[string]any{"type": "array"},
		},
	}
}

var compiledDocumentSchema = mustCompile(documentSchema())

func mustCompile(schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal document schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("document.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add document schema: %v", err))
	}
	schema, err := compiler.Compile("document.json")
	if err != nil {
		panic(fmt.Sprintf("compile document schema: %v", err))
	}
	return schema
}

// checkStructure validates the decoded document against documentSchema and
// translates the first leaf failure into the validation error taxonomy.
func checkStructure(doc any) error {
	err := compiledDocumentSchema.Validate(doc)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return &ValidationError{Kind: TypeMismatch, Path: "$", Actual: err.Error()}
	}
	leaf := leafCause(verr)
	return translateSchemaError(leaf)
}

func leafCause(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(err.Causes) > 0 {
		err = err.Causes[0]
	}
	return err
}

func translateSchemaError(err *jsonschema.ValidationError) error {
	path := instancePath(err.InstanceLocation)
	keyword := err.KeywordLocation[strings.LastIndex(err.KeywordLocation, "/")+1:]
	switch keyword {
	case "minItems":
		if err.InstanceLocation == "/items" {
			return &ValidationError{Kind: EmptyItemList, Path: path}
		}
		return &ValidationError{Kind: TypeMismatch, Path: path, Actual: err.Message}
	case "required":
		// Message reads like: missing properties: 'store', 'date'
		field := firstQuoted(err.Message)
		if field == "" {
			return &ValidationError{Kind: MissingRequiredField, Path: path}
		}
		return &ValidationError{Kind: MissingRequiredField, Path: joinPath(path, field)}
	case "minLength":
		return &ValidationError{Kind: MissingRequiredField, Path: path}
	default:
		return &ValidationError{Kind: TypeMismatch, Path: path, Actual: err.Message}
	}
}

// instancePath converts a JSON pointer ("/items/0/product") into the
// dotted form used in errors ("items[0].product").
func instancePath(ptr string) string {
	if ptr == "" || ptr == "/" {
		return "$"
	}
	parts := strings.Split(strings.TrimPrefix(ptr, "/"), "/")
	var sb strings.Builder
	for i, p := range parts {
		if isDigits(p) {
			fmt.Fprintf(&sb, "[%s]", p)
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// firstQuoted returns the first single-quoted token in msg, or "".
func firstQuoted(msg string) string {
	start := strings.IndexByte(msg, '\'')
	if start < 0 {
		return ""
	}
	end := strings.IndexByte(msg[start+1:], '\'')
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}

func joinPath(base, field string) string {
	if base == "$" || base == "" {
		return field
	}
	return base + "." + field
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
