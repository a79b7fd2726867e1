package revokesession

import "store-sessions/internal/common/validation"

func GetInputSchema() validation.JSONSchema {
	return validation.JSONSchema{
		Type:     "object",
		Required: []string{"userId", "sessionId"},
		Properties: map[string]validation.Property{
			"userId": {
				Type:        "string",
				Description: "Owner of the session",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(255),
			},
			"sessionId": {
				Type:        "string",
				Description: "Session to revoke",
				MinLength:   validation.IntPtr(1),
				MaxLength:   validation.IntPtr(255),
			},
			"reason": {
				Type:        "string",
				Description: "Why the session is revoked",
				MaxLength:   validation.IntPtr(500),
			},
		},
		AdditionalProperties: true,
	}
}
