// Package model defines the data structures shared across the sync core.
package model

import "time"

// Identity is the resolved profile record for the current credential.
//
// The remote service keys accounts by username, so Username is the stable
// identifier everywhere in this module (including PendingWrite.Owner).
// Email and AvatarURL may be empty if the user never filled them in; an
// empty string is easier to work with than a nullable pointer and safe
// to display.
type Identity struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Email       string    `json:"email"`
	AvatarURL   string    `json:"avatarUrl"`
	BirthDate   time.Time `json:"birthDate"`
}
