package models

import "time"

// SessionRecord is one tracked login session of a principal.
type SessionRecord struct {
	SessionID     string    `json:"sessionId"`
	SourceAddress string    `json:"sourceAddress"`
	LastActivity  time.Time `json:"lastActivity"`
}

// StoredSession is the payload the session store keeps under a session id.
type StoredSession struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	RefreshToken string    `json:"refreshToken,omitempty"`
}

// IsExpired checks if the stored session has expired
func (s *StoredSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}
