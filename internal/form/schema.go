// Package form validates submitted task data against a dynamic field schema.
//
// A schema maps field names to definitions. Each definition's type selects
// exactly one validation rule (text, number, boolean, date, select, ...);
// the rule is resolved once per field and applied to the submitted value,
// producing either a coerced value or a list of messages.
package form

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
)

// ErrInvalidSchema is returned when a schema is not well-formed.
var ErrInvalidSchema = errors.New("invalid form schema")

// FieldType is the kind of a form field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextarea    FieldType = "textarea"
	FieldEmail       FieldType = "email"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "datetime"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldFile        FieldType = "file"
)

// IsKnown reports whether the type is one the validator understands.
func (t FieldType) IsKnown() bool {
	switch t {
	case FieldText, FieldTextarea, FieldEmail, FieldNumber, FieldBoolean,
		FieldDate, FieldDateTime, FieldSelect, FieldMultiSelect, FieldFile:
		return true
	default:
		return false
	}
}

func (t FieldType) hasOptions() bool {
	return t == FieldSelect || t == FieldMultiSelect
}

func (t FieldType) isText() bool {
	return t == FieldText || t == FieldTextarea || t == FieldEmail
}

// Option is one choice of a select field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Rules are the optional per-field bounds.
type Rules struct {
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// Field is a single field definition.
type Field struct {
	Type       FieldType `json:"type"`
	Label      string    `json:"label,omitempty"`
	Required   bool      `json:"required,omitempty"`
	Options    []Option  `json:"options,omitempty"`
	Validation *Rules    `json:"validation,omitempty"`
}

// Schema maps field names to definitions.
type Schema map[string]Field

// Parse decodes a raw schema and checks that it is well-formed. Options that
// are not {value,label} objects fail to decode and are reported as invalid.
func Parse(raw []byte) (Schema, error) {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var schema Schema
	if err := dec.Decode(&schema); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	return schema, nil
}

// Validate checks the schema for well-formedness: every field has a known
// type, select fields carry non-empty options, patterns compile and bounds
// are ordered.
func (s Schema) Validate() error {
	for _, name := range s.Names() {
		if err := s[name].validate(); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidSchema, name, err)
		}
	}
	return nil
}

func (f Field) validate() error {
	if !f.Type.IsKnown() {
		return fmt.Errorf("unknown type %q", f.Type)
	}

	if f.Type.hasOptions() {
		if len(f.Options) == 0 {
			return errors.New("options are required")
		}
		seen := make(map[string]bool, len(f.Options))
		for i, opt := range f.Options {
			if opt.Value == "" || opt.Label == "" {
				return fmt.Errorf("option %d must have a value and a label", i)
			}
			if seen[opt.Value] {
				return fmt.Errorf("duplicate option value %q", opt.Value)
			}
			seen[opt.Value] = true
		}
	}

	r := f.Validation
	if r == nil {
		return nil
	}
	if r.MinLength != nil && *r.MinLength < 0 {
		return errors.New("minLength must not be negative")
	}
	if r.MinLength != nil && r.MaxLength != nil && *r.MinLength > *r.MaxLength {
		return errors.New("minLength exceeds maxLength")
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return errors.New("min exceeds max")
	}
	if r.Pattern != "" {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("pattern: %v", err)
		}
	}
	return nil
}

// Names returns the field names in sorted order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the schema.
func (s Schema) Clone() Schema {
	if s == nil {
		return nil
	}
	out := make(Schema, len(s))
	for name, field := range s {
		field.Options = append([]Option(nil), field.Options...)
		if field.Validation != nil {
			rules := *field.Validation
			field.Validation = &rules
		}
		out[name] = field
	}
	return out
}
