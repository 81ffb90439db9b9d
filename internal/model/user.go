package model

import (
	"time"
)

type User struct {
	ID           string `db:"id" json:"id"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Verified     bool   `db:"verified" json:"verified"`
	// Set while an email-verification or password-reset flow is open,
	// NULL otherwise. A consumed token is cleared, never blanked.
	VerificationToken *string   `db:"verification_token" json:"-"`
	SocialID          *string   `db:"social_id" json:"-"`
	Provider          *string   `db:"provider" json:"provider,omitempty"`
	Name              string    `db:"name" json:"name"`
	Language          string    `db:"language" json:"language,omitempty"`
	Avatar            string    `db:"avatar" json:"avatar,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

func (u *User) HasPendingToken() bool {
	return u.VerificationToken != nil && *u.VerificationToken != ""
}

func (u *User) IsSocial() bool {
	return u.SocialID != nil && *u.SocialID != ""
}
