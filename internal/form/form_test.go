package form_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/humantask/internal/form"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func approvalSchema() form.Schema {
	return form.Schema{
		"comment": {
			Type:       form.FieldTextarea,
			Validation: &form.Rules{MinLength: intPtr(3), MaxLength: intPtr(20)},
		},
		"amount": {
			Type:       form.FieldNumber,
			Required:   true,
			Validation: &form.Rules{Min: floatPtr(0), Max: floatPtr(1000)},
		},
		"approved": {Type: form.FieldBoolean, Required: true},
		"decision": {
			Type:     form.FieldSelect,
			Required: true,
			Options: []form.Option{
				{Value: "approve", Label: "Approve"},
				{Value: "reject", Label: "Reject"},
			},
		},
		"code": {
			Type:       form.FieldText,
			Validation: &form.Rules{Pattern: `^[A-Z]{3}-\d+$`},
		},
		"effective": {Type: form.FieldDate},
		"contact":   {Type: form.FieldEmail},
		"evidence":  {Type: form.FieldFile},
	}
}

func TestValidate_Valid(t *testing.T) {
	data, errs := form.Validate(approvalSchema(), map[string]any{
		"amount":    "250.5",
		"approved":  true,
		"decision":  "approve",
		"code":      "ABC-42",
		"effective": "2026-03-01",
		"contact":   "ops@example.com",
		"evidence":  map[string]any{"key": "s3://bucket/file.pdf"},
		"unknown":   "dropped",
	})

	require.Nil(t, errs)
	assert.Equal(t, 250.5, data["amount"])
	assert.Equal(t, true, data["approved"])
	assert.Equal(t, "approve", data["decision"])
	assert.Equal(t, "2026-03-01", data["effective"])
	assert.Equal(t, map[string]any{"key": "s3://bucket/file.pdf"}, data["evidence"])
	assert.NotContains(t, data, "unknown")
	assert.NotContains(t, data, "comment")
}

func TestValidate_CollectsAllFieldErrors(t *testing.T) {
	data, errs := form.Validate(approvalSchema(), map[string]any{
		"comment":   "no",
		"amount":    5000.0,
		"decision":  "maybe",
		"code":      "abc",
		"effective": "03/01/2026",
		"contact":   "not-an-email",
	})

	assert.Nil(t, data)
	assert.Equal(t, []string{"must be at least 3 characters"}, errs["comment"])
	assert.Equal(t, []string{"must be less than or equal to 1000"}, errs["amount"])
	assert.Equal(t, []string{"is required"}, errs["approved"])
	assert.Equal(t, []string{"must be one of: approve, reject"}, errs["decision"])
	assert.Len(t, errs["code"], 1)
	assert.Len(t, errs["effective"], 1)
	assert.Equal(t, []string{"must be a valid email address"}, errs["contact"])
}

func TestValidate_OptionalFieldsAcceptAbsenceAndNull(t *testing.T) {
	schema := form.Schema{
		"note":  {Type: form.FieldText},
		"score": {Type: form.FieldNumber},
	}

	data, errs := form.Validate(schema, map[string]any{"note": nil})
	require.Nil(t, errs)
	assert.Empty(t, data)
}

func TestValidate_RequiredBlankString(t *testing.T) {
	schema := form.Schema{"reason": {Type: form.FieldText, Required: true}}

	_, errs := form.Validate(schema, map[string]any{"reason": "   "})
	assert.Equal(t, []string{"is required"}, errs["reason"])
}

func TestValidate_TypeMismatch(t *testing.T) {
	schema := form.Schema{
		"amount":   {Type: form.FieldNumber},
		"approved": {Type: form.FieldBoolean},
		"tags": {Type: form.FieldMultiSelect, Options: []form.Option{
			{Value: "a", Label: "A"},
			{Value: "b", Label: "B"},
		}},
	}

	_, errs := form.Validate(schema, map[string]any{
		"amount":   "lots",
		"approved": "sure",
		"tags":     []any{"a", "c"},
	})
	assert.Equal(t, []string{"must be a number"}, errs["amount"])
	assert.Equal(t, []string{"must be a boolean"}, errs["approved"])
	assert.Equal(t, []string{`"c" is not one of: a, b`}, errs["tags"])
}

func TestValidate_NonFiniteNumbers(t *testing.T) {
	lo, hi := 0.0, 10.0
	schema := form.Schema{
		"score": {Type: form.FieldNumber, Required: true, Validation: &form.Rules{Min: &lo, Max: &hi}},
		"n":     {Type: form.FieldNumber},
	}

	for _, in := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity"} {
		t.Run(in, func(t *testing.T) {
			data, errs := form.Validate(schema, map[string]any{"score": in, "n": in})
			assert.Nil(t, data)
			assert.Equal(t, []string{"must be a number"}, errs["score"])
			assert.Equal(t, []string{"must be a number"}, errs["n"])
		})
	}
}

func TestValidate_RequiredMultiSelectEmpty(t *testing.T) {
	schema := form.Schema{
		"tags": {Type: form.FieldMultiSelect, Required: true, Options: []form.Option{{Value: "a", Label: "A"}}},
		"opt":  {Type: form.FieldMultiSelect, Options: []form.Option{{Value: "a", Label: "A"}}},
	}

	_, errs := form.Validate(schema, map[string]any{"tags": []any{}, "opt": []any{}})
	assert.Equal(t, []string{"is required"}, errs["tags"])
	assert.NotContains(t, errs, "opt")

	data, errs := form.Validate(schema, map[string]any{"tags": []string{"a"}})
	require.Nil(t, errs)
	assert.Equal(t, []string{"a"}, data["tags"])
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name   string
		schema form.Schema
		ok     bool
	}{
		{"valid", approvalSchema(), true},
		{"unknown type", form.Schema{"x": {Type: "slider"}}, false},
		{"select without options", form.Schema{"x": {Type: form.FieldSelect}}, false},
		{"option without label", form.Schema{"x": {Type: form.FieldSelect, Options: []form.Option{{Value: "a"}}}}, false},
		{"duplicate options", form.Schema{"x": {Type: form.FieldSelect, Options: []form.Option{
			{Value: "a", Label: "A"}, {Value: "a", Label: "Again"},
		}}}, false},
		{"bad pattern", form.Schema{"x": {Type: form.FieldText, Validation: &form.Rules{Pattern: "("}}}, false},
		{"min over max", form.Schema{"x": {Type: form.FieldNumber, Validation: &form.Rules{Min: floatPtr(5), Max: floatPtr(1)}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, form.ErrInvalidSchema)
		})
	}
}

func TestParse(t *testing.T) {
	schema, err := form.Parse([]byte(`{
		"decision": {"type": "select", "required": true,
			"options": [{"value": "yes", "label": "Yes"}, {"value": "no", "label": "No"}]},
		"amount": {"type": "number", "validation": {"min": 1}}
	}`))
	require.NoError(t, err)
	assert.True(t, schema["decision"].Required)
	assert.Equal(t, 1.0, *schema["amount"].Validation.Min)

	_, err = form.Parse([]byte(`{"decision": {"type": "select", "options": ["yes", "no"]}}`))
	assert.ErrorIs(t, err, form.ErrInvalidSchema)

	_, err = form.Parse([]byte(`{"x": {"type": "text", "colour": "red"}}`))
	assert.ErrorIs(t, err, form.ErrInvalidSchema)

	schema, err = form.Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, schema)
}
