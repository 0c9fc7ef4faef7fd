package domain

import "time"

// User represents a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AnonymousUserID is the sentinel owner assigned to entries recorded before
// accounts existed. It is only created by the legacy schema migration.
const AnonymousUserID int64 = 1
