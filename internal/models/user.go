package models

import "time"

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is a vault owner. LastSignInAt is the activity signal the inactivity
// detector reads; it is refreshed on OAuth sign-in, check-in, and activity
// stream events.
type User struct {
	Base
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null;default:''"`
	Role         string `gorm:"not null;default:'user'"` // enum: 'user' or 'admin'
	LastSignInAt *time.Time

	// Associations
	AuthIdentities []AuthIdentity `gorm:"constraint:OnDelete:CASCADE;"`
	Guardians      []Guardian     `gorm:"constraint:OnDelete:CASCADE;"`
}

// LastActivity returns the most recent activity timestamp, falling back to
// account creation for users who never signed in.
func (u *User) LastActivity() time.Time {
	if u.LastSignInAt != nil {
		return *u.LastSignInAt
	}
	return u.CreatedAt
}
