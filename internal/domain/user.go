package domain

import (
	"encoding/json"
	"time"
)

// User is a credential record keyed by its immutable username.
type User struct {
	Username     string
	PasswordHash string
	LastActivity *time.Time
	// Extra holds persisted fields this service does not interpret, so a
	// save writes them back unchanged.
	Extra map[string]json.RawMessage
}

// Users maps usernames to their credential records.
type Users map[string]User

// Clone returns a copy that can be modified without touching u.
func (u Users) Clone() Users {
	out := make(Users, len(u))
	for name, user := range u {
		if user.LastActivity != nil {
			ts := *user.LastActivity
			user.LastActivity = &ts
		}
		if user.Extra != nil {
			extra := make(map[string]json.RawMessage, len(user.Extra))
			for k, v := range user.Extra {
				extra[k] = append(json.RawMessage(nil), v...)
			}
			user.Extra = extra
		}
		out[name] = user
	}
	return out
}
