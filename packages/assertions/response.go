package assertions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/abdul-hamid-achik/reqly/packages/core/model"
)

// Status checks the response status code.
func Status(resp *model.ResponseData, code int) error {
	if resp == nil {
		return &AssertionError{Message: "No response available to check status", Expected: code}
	}
	if resp.Status == code {
		return nil
	}
	return &AssertionError{
		Message:  fmt.Sprintf("Expected status %d to equal %d", resp.Status, code),
		Actual:   resp.Status,
		Expected: code,
		Relation: "equal",
	}
}

// Header checks that the response has header name, and when value is given,
// that it equals value. Names match case-insensitively.
func Header(resp *model.ResponseData, name string, value ...string) error {
	if resp == nil {
		return &AssertionError{Message: "No response available to check headers", Expected: name}
	}
	got, ok := resp.Header(name)
	if !ok {
		return &AssertionError{
			Message:  fmt.Sprintf("Expected response to have header %s", Format(name)),
			Expected: name,
			Relation: "have header",
		}
	}
	if len(value) > 0 && got != value[0] {
		return &AssertionError{
			Message:  fmt.Sprintf("Expected header %s value %s to equal %s", Format(name), Format(got), Format(value[0])),
			Actual:   got,
			Expected: value[0],
			Relation: "equal",
		}
	}
	return nil
}

// JSONSchema validates a JSON document against schema. schema may be a JSON
// string, raw bytes or any value that marshals to a schema object.
func JSONSchema(document string, schema any) error {
	var schemaLoader gojsonschema.JSONLoader
	switch s := schema.(type) {
	case string:
		schemaLoader = gojsonschema.NewStringLoader(s)
	case []byte:
		schemaLoader = gojsonschema.NewBytesLoader(s)
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("invalid schema: %w", err)
		}
		schemaLoader = gojsonschema.NewBytesLoader(data)
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewStringLoader(document))
	if err != nil {
		return &AssertionError{Message: fmt.Sprintf("schema validation error: %v", err), Expected: schema}
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return &AssertionError{
		Message:  "Expected body to match schema: " + strings.Join(errs, "; "),
		Actual:   document,
		Expected: schema,
		Relation: "match schema",
	}
}
