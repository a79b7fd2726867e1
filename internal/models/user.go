package models

import "time"

// User is the principal whose active sessions are tracked.
type User struct {
	ID        string          `json:"id" db:"id"`
	Email     string          `json:"email" db:"email"`
	Sessions  []SessionRecord `json:"sessions" db:"sessions"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

func (u *User) PrincipalID() string {
	return u.ID
}

func (u *User) SessionList() []SessionRecord {
	return u.Sessions
}

func (u *User) ReplaceSessions(sessions []SessionRecord) {
	u.Sessions = sessions
}
