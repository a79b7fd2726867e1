package invalidateothers

import "store-sessions/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"userId", "sessionId"},
		Properties: map[string]validation.Property{
			"userId": {
				Type:        "string",
				Description: "Principal whose other sessions are signed out",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(255),
			},
			"sessionId": {
				Type:        "string",
				Description: "Session to keep",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(255),
			},
			"reason": {
				Type:        "string",
				Description: "Why the other sessions are being invalidated",
				MaxLength:   validation.IntPtr(500),
			},
		},
		// Jobs carry every process variable in scope.
		AdditionalProperties: true,
	}
}

func GetOutputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type: "object",
		Properties: map[string]validation.Property{
			"success":           {Type: "boolean"},
			"message":           {Type: "string"},
			"remainingSessions": {Type: "integer"},
			"invalidated":       {Type: "array"},
			"destroyFailures":   {Type: "array"},
			"completedAt":       {Type: "string"},
		},
	}
}
