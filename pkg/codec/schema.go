package codec

import (
	"bytes"
	"encoding/json"

	"github.com/ereojs/ereo/pkg/common"
)

// SchemaValidator is a typed input validator: it decodes raw JSON into T
// and runs optional check functions against the decoded value. Builder
// methods return new values, so a base schema can be shared and extended
// per procedure without interference.
type SchemaValidator[T any] struct {
	checks []func(T) error
}

// Schema creates a validator for inputs of type T.
func Schema[T any]() SchemaValidator[T] {
	return SchemaValidator[T]{}
}

// Check returns a new validator with an additional check function. Check
// errors may implement common.Issuer to surface per-field issues; see
// common.ValidationIssues.
func (s SchemaValidator[T]) Check(fn func(T) error) SchemaValidator[T] {
	checks := make([]func(T) error, 0, len(s.checks)+1)
	checks = append(checks, s.checks...)
	checks = append(checks, fn)
	return SchemaValidator[T]{checks: checks}
}

var _ common.Validator = SchemaValidator[struct{}]{}

// Validate implements common.Validator. Empty input decodes as JSON
// null, so optional inputs validate against a zero T.
func (s SchemaValidator[T]) Validate(data []byte) (any, error) {
	if len(data) == 0 {
		data = []byte("null")
	}
	var value T
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&value); err != nil {
		return nil, common.ValidationIssues(common.Issue{
			Message: "malformed input: " + err.Error(),
			Code:    "invalid_json",
		})
	}
	for _, check := range s.checks {
		if err := check(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}
