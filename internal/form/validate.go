package form

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Errors maps field names to their validation messages.
type Errors map[string][]string

// rule validates and coerces a single non-null value.
type rule interface {
	apply(value any) (any, []string)
}

// ruleFor resolves the rule for a field once per validation pass.
func ruleFor(f Field) rule {
	rules := Rules{}
	if f.Validation != nil {
		rules = *f.Validation
	}

	switch {
	case f.Type.isText():
		r := textRule{rules: rules, email: f.Type == FieldEmail}
		if rules.Pattern != "" {
			r.pattern, _ = regexp.Compile(rules.Pattern)
		}
		return r
	case f.Type == FieldNumber:
		return numberRule{rules: rules}
	case f.Type == FieldBoolean:
		return booleanRule{}
	case f.Type == FieldDate:
		return dateRule{layout: time.DateOnly}
	case f.Type == FieldDateTime:
		return dateRule{layout: time.RFC3339}
	case f.Type == FieldSelect:
		return selectRule{options: f.Options}
	case f.Type == FieldMultiSelect:
		return multiSelectRule{options: f.Options}
	default:
		return passThrough{}
	}
}

// Validate checks data against the schema. It returns the coerced data
// (schema fields only) or the per-field errors; never both.
func Validate(schema Schema, data map[string]any) (map[string]any, Errors) {
	out := make(map[string]any, len(schema))
	errs := Errors{}

	for _, name := range schema.Names() {
		field := schema[name]
		value, present := data[name]

		if !present || value == nil || isBlankString(value) || (field.Required && isEmptyList(value)) {
			if field.Required {
				errs[name] = []string{"is required"}
			}
			continue
		}

		coerced, messages := ruleFor(field).apply(value)
		if len(messages) > 0 {
			errs[name] = messages
			continue
		}
		out[name] = coerced
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func isBlankString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func isEmptyList(v any) bool {
	switch l := v.(type) {
	case []any:
		return len(l) == 0
	case []string:
		return len(l) == 0
	}
	return false
}

type passThrough struct{}

func (passThrough) apply(value any) (any, []string) {
	return value, nil
}

type textRule struct {
	rules   Rules
	pattern *regexp.Regexp
	email   bool
}

func (r textRule) apply(value any) (any, []string) {
	s, ok := value.(string)
	if !ok {
		return nil, []string{"must be a string"}
	}

	var messages []string
	length := utf8.RuneCountInString(s)
	if r.rules.MinLength != nil && length < *r.rules.MinLength {
		messages = append(messages, fmt.Sprintf("must be at least %d characters", *r.rules.MinLength))
	}
	if r.rules.MaxLength != nil && length > *r.rules.MaxLength {
		messages = append(messages, fmt.Sprintf("must be at most %d characters", *r.rules.MaxLength))
	}
	if r.pattern != nil && !r.pattern.MatchString(s) {
		messages = append(messages, fmt.Sprintf("must match pattern %s", r.rules.Pattern))
	}
	if r.email {
		if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
			messages = append(messages, "must be a valid email address")
		}
	}
	return s, messages
}

type numberRule struct {
	rules Rules
}

func (r numberRule) apply(value any) (any, []string) {
	n, ok := toFloat(value)
	if !ok {
		return nil, []string{"must be a number"}
	}

	var messages []string
	if r.rules.Min != nil && n < *r.rules.Min {
		messages = append(messages, fmt.Sprintf("must be greater than or equal to %s", formatFloat(*r.rules.Min)))
	}
	if r.rules.Max != nil && n > *r.rules.Max {
		messages = append(messages, fmt.Sprintf("must be less than or equal to %s", formatFloat(*r.rules.Max)))
	}
	return n, messages
}

// toFloat rejects NaN and infinities; neither survives JSON encoding.
func toFloat(value any) (float64, bool) {
	f, ok := rawFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func rawFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

type booleanRule struct{}

func (booleanRule) apply(value any) (any, []string) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b, nil
		}
	}
	return nil, []string{"must be a boolean"}
}

type dateRule struct {
	layout string
}

func (r dateRule) apply(value any) (any, []string) {
	s, ok := value.(string)
	if !ok {
		return nil, []string{"must be a date string"}
	}
	t, err := time.Parse(r.layout, s)
	if err != nil {
		return nil, []string{fmt.Sprintf("must be a date in %s format", r.layout)}
	}
	return t.Format(r.layout), nil
}

type selectRule struct {
	options []Option
}

func (r selectRule) apply(value any) (any, []string) {
	s, ok := value.(string)
	if !ok || !hasOption(r.options, s) {
		return nil, []string{"must be one of: " + optionList(r.options)}
	}
	return s, nil
}

type multiSelectRule struct {
	options []Option
}

func (r multiSelectRule) apply(value any) (any, []string) {
	var items []string
	switch v := value.(type) {
	case []string:
		items = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, []string{"must be a list of strings"}
			}
			items = append(items, s)
		}
	default:
		return nil, []string{"must be a list of strings"}
	}

	var messages []string
	for _, item := range items {
		if !hasOption(r.options, item) {
			messages = append(messages, fmt.Sprintf("%q is not one of: %s", item, optionList(r.options)))
		}
	}
	return items, messages
}

func hasOption(options []Option, value string) bool {
	for _, opt := range options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func optionList(options []Option) string {
	values := make([]string, len(options))
	for i, opt := range options {
		values[i] = opt.Value
	}
	return strings.Join(values, ", ")
}
