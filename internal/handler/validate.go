package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qri-io/jsonschema"

	"github.com/pyquest-jobs/internal/domain"
)

const activitySchemaJSON = `{
	"type": "object",
	"required": ["user_id", "activity_type"],
	"properties": {
		"event_id": {"type": "string", "minLength": 1, "maxLength": 200},
		"user_id": {"type": "string", "minLength": 1},
		"activity_type": {"type": "string", "minLength": 1},
		"activity_data": {"type": ["object", "null"]},
		"occurred_at": {"type": "string"}
	}
}`

const weeklySchemaJSON = `{
	"type": "object",
	"required": ["week_start"],
	"properties": {
		"week_start": {"type": "string", "minLength": 1}
	}
}`

var (
	activitySchema = mustSchema(activitySchemaJSON)
	weeklySchema   = mustSchema(weeklySchemaJSON)
)

func mustSchema(raw string) *jsonschema.Schema {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(raw), rs); err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return rs
}

// validateBody checks a request body against a schema. Malformed JSON and
// schema violations both wrap domain.ErrInvalidRequest.
func validateBody(ctx context.Context, schema *jsonschema.Schema, body []byte) error {
	verrs, err := schema.ValidateBytes(ctx, body)
	if err != nil {
		return fmt.Errorf("%w: malformed JSON body", domain.ErrInvalidRequest)
	}
	if len(verrs) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		path := e.PropertyPath
		if path == "" {
			path = "/"
		}
		msgs = append(msgs, path+" "+e.Message)
	}
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, strings.Join(msgs, "; "))
}
