package sessions

import (
	stderrors "errors"
	"fmt"
	"time"

	"store-sessions/internal/common/errors"
	"store-sessions/internal/models"
)

// FieldNames renames the session attributes inside a persisted principal.
type FieldNames struct {
	Sessions      string `mapstructure:"sessions"`
	SourceAddress string `mapstructure:"source_address"`
	LastActivity  string `mapstructure:"last_activity"`
	SessionID     string `mapstructure:"session_id"`
}

func DefaultFieldNames() FieldNames {
	return FieldNames{
		Sessions:      "sessions",
		SourceAddress: "ip",
		LastActivity:  "last_activity",
		SessionID:     "sid",
	}
}

// Validate requires every name to be set and reports the first one that isn't.
func (f FieldNames) Validate() error {
	checks := []struct {
		name  string
		value string
	}{
		{"sessions", f.Sessions},
		{"sourceAddress", f.SourceAddress},
		{"lastActivity", f.LastActivity},
		{"sessionId", f.SessionID},
	}
	for _, c := range checks {
		if c.value == "" {
			return errors.NewConfigurationError(c.name, fmt.Sprintf("%s must be a non-empty string", c.name))
		}
	}
	return nil
}

// EncodeRecord renders r using the configured attribute names.
func (f FieldNames) EncodeRecord(r models.SessionRecord) map[string]interface{} {
	return map[string]interface{}{
		f.SessionID:     r.SessionID,
		f.SourceAddress: r.SourceAddress,
		f.LastActivity:  r.LastActivity.UTC().Format(time.RFC3339Nano),
	}
}

func (f FieldNames) EncodeList(list []models.SessionRecord) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, r := range list {
		out = append(out, f.EncodeRecord(r))
	}
	return out
}

// DecodeRecord is the inverse of EncodeRecord. A record without a session id
// is rejected. An unreadable timestamp is reported alongside the record, which
// keeps its id and address with a zero LastActivity.
func (f FieldNames) DecodeRecord(raw map[string]interface{}) (models.SessionRecord, error) {
	var r models.SessionRecord

	sid, _ := raw[f.SessionID].(string)
	if sid == "" {
		return r, fmt.Errorf("session record missing %q", f.SessionID)
	}
	r.SessionID = sid
	r.SourceAddress, _ = raw[f.SourceAddress].(string)

	switch v := raw[f.LastActivity].(type) {
	case time.Time:
		r.LastActivity = v
	case string:
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return r, fmt.Errorf("session record %s: parse %q: %w", sid, f.LastActivity, err)
		}
		r.LastActivity = ts
	}
	return r, nil
}

// DecodeList accepts the shapes a session list takes after JSON decoding or
// after EncodeList. Nil means no list.
//
// Records are decoded one by one. Every record that has a session id is
// returned, even when some of its attributes are unreadable, so the session
// can still be probed and destroyed. The returned error joins the problems
// found; a non-array value yields no records at all.
func (f FieldNames) DecodeList(raw interface{}) ([]models.SessionRecord, error) {
	var (
		items []map[string]interface{}
		errs  []error
	)
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []map[string]interface{}:
		items = v
	case []interface{}:
		items = make([]map[string]interface{}, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				errs = append(errs, fmt.Errorf("%s[%d]: expected object, got %T", f.Sessions, i, item))
				continue
			}
			items[i] = m
		}
	default:
		return nil, fmt.Errorf("%s: expected array, got %T", f.Sessions, raw)
	}

	out := make([]models.SessionRecord, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		r, err := f.DecodeRecord(item)
		if err != nil {
			errs = append(errs, err)
		}
		if r.SessionID == "" {
			continue
		}
		out = append(out, r)
	}
	return out, stderrors.Join(errs...)
}
