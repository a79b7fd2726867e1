package sessions

import (
	"store-sessions/internal/common/errors"
	"store-sessions/internal/common/validation"
)

// RecordSchema describes one session record under the configured names.
func (f FieldNames) RecordSchema() validation.Property {
	return validation.Property{
		Type: "object",
		Properties: map[string]validation.Property{
			f.SessionID: {
				Type:        "string",
				Description: "Session identifier matching the session cookie",
				MinLength:   validation.IntPtr(1),
			},
			f.SourceAddress: {
				Type:        "string",
				Description: "Network address observed on the last write",
			},
			f.LastActivity: {
				Type:        "string",
				Format:      "date-time",
				Description: "Time of the last write",
			},
		},
		Required: []string{f.SessionID},
	}
}

// Plugin extends schema with an array of session records under f.Sessions.
func Plugin(schema *validation.JSONSchema, f FieldNames) (*validation.JSONSchema, error) {
	if schema == nil {
		return nil, errors.NewConfigurationError("schema", "schema must be provided")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	record := f.RecordSchema()
	return validation.AugmentSchema(schema, f.Sessions, validation.Property{
		Type:        "array",
		Description: "Active login sessions",
		Items:       &record,
	}), nil
}
