package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
)

var (
	// ErrEmptyResponse means the model returned no content
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrSchemaMismatch means the content is not JSON matching the requested schema
	ErrSchemaMismatch = errors.New("response does not match schema")
)

// Decode validates content against schema and unmarshals it into v. Markdown code
// fences around the JSON are tolerated.
func Decode(content string, schema jsonschema.Definition, v any) error {
	body := stripFences(content)
	if body == "" {
		return ErrEmptyResponse
	}

	if err := jsonschema.VerifySchemaAndUnmarshal(schema, []byte(body), v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

func stripFences(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
