package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// AnswerRequestSchema describes the variables needed to answer one question.
// Extra properties are allowed since workflow jobs carry every process variable.
const AnswerRequestSchema = `{
  "type": "object",
  "properties": {
    "question": {"type": "string", "minLength": 1, "maxLength": 4000, "pattern": "\\S"},
    "backend":  {"type": "string", "maxLength": 32}
  },
  "required": ["question"],
  "additionalProperties": true
}`

// DescribeSchemaRequestSchema validates schema description requests.
const DescribeSchemaRequestSchema = `{
  "type": "object",
  "properties": {
    "backend": {"type": "string", "minLength": 1, "maxLength": 32}
  },
  "required": ["backend"]
}`

var (
	answerRequest   = mustCompile(AnswerRequestSchema)
	describeRequest = mustCompile(DescribeSchemaRequestSchema)
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func mustCompile(schemaJSON string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return schema
}

// ValidateAnswerRequest checks a decoded answer request or job variable map.
func ValidateAnswerRequest(document interface{}) *ValidationResult {
	return validate(answerRequest, gojsonschema.NewGoLoader(document))
}

func ValidateDescribeRequest(document interface{}) *ValidationResult {
	return validate(describeRequest, gojsonschema.NewGoLoader(document))
}

// Validate checks document against an arbitrary schema given as JSON text.
func Validate(schemaJSON string, document interface{}) (*ValidationResult, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return validate(schema, gojsonschema.NewGoLoader(document)), nil
}

func validate(schema *gojsonschema.Schema, document gojsonschema.JSONLoader) *ValidationResult {
	result, err := schema.Validate(document)
	if err != nil {
		return &ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Field:   "(root)",
				Message: err.Error(),
				Code:    "INVALID_DOCUMENT",
			}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		field := desc.Field()
		if prop, ok := desc.Details()["property"].(string); ok && desc.Type() == "required" {
			field = prop
		}
		out.Errors = append(out.Errors, ValidationError{
			Field:   field,
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Error joins every message; empty when the document is valid.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}
