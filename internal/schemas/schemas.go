// Package schemas validates request documents against the embedded JSON
// schemas.
package schemas

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const (
	AuditInputs = "audit_inputs.json"
	Contact     = "contact.json"
)

//go:embed *.json
var files embed.FS

var (
	mu       sync.Mutex
	compiled = map[string]*gojsonschema.Schema{}
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation of a document.
type ValidationError struct {
	Schema string
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("%s validation failed: %s", strings.TrimSuffix(e.Schema, ".json"), strings.Join(parts, "; "))
}

func load(name string) (*gojsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}
	raw, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

// ValidateBytes checks a raw JSON document.
func ValidateBytes(name string, doc []byte) error {
	return validate(name, gojsonschema.NewBytesLoader(doc))
}

// ValidateValue checks a Go value (maps, slices, structs with json tags).
func ValidateValue(name string, doc any) error {
	return validate(name, gojsonschema.NewGoLoader(doc))
}

func validate(name string, doc gojsonschema.JSONLoader) error {
	s, err := load(name)
	if err != nil {
		return err
	}
	result, err := s.Validate(doc)
	if err != nil {
		return &ValidationError{Schema: name, Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if result.Valid() {
		return nil
	}
	out := make([]FieldError, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		out = append(out, FieldError{Field: fieldOf(desc), Message: desc.Description()})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return &ValidationError{Schema: name, Errors: out}
}

// fieldOf names the offending property; required errors are reported on the
// missing property rather than on the parent object.
func fieldOf(desc gojsonschema.ResultError) string {
	if desc.Type() == "required" {
		if p, ok := desc.Details()["property"].(string); ok {
			return p
		}
	}
	return desc.Field()
}
