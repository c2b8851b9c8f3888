package user

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// The request-to-record copies below are deliberately static: each
// operation has its own declared field set, and anything else in the
// payload is dropped. Only the admin path may touch role or password.

// CreateInput is the payload accepted when creating or registering a
// user. Role, subroles, verified, password and the token fields are
// not bindable here; only the admin path and the registration flow
// may set a password, and they do so explicitly.
type CreateInput struct {
	Username    string `json:"username" binding:"required,max=64"`
	Email       string `json:"email" binding:"required,email"`
	DisplayName string `json:"displayName" binding:"omitempty,max=64"`
	FirstName   string `json:"firstName" binding:"omitempty,max=64"`
	LastName    string `json:"lastName" binding:"omitempty,max=64"`
}

// ApplyCreate copies the allow-listed create fields onto a fresh
// record and derives the avatar URL from the email.
func ApplyCreate(m *Model, in *CreateInput, avatarHost string) {
	m.Username = strings.TrimSpace(in.Username)
	m.Email = strings.TrimSpace(in.Email)
	m.DisplayName = strings.TrimSpace(in.DisplayName)
	m.FirstName = strings.TrimSpace(in.FirstName)
	m.LastName = strings.TrimSpace(in.LastName)
	m.ProfileImageURL = AvatarURL(avatarHost, m.Email)
}

// UpdateInput is the payload for self-service updates. The id names
// the target record; profile fields are optional so absent keys leave
// the stored value alone.
type UpdateInput struct {
	ID          string  `json:"id"`
	Email       *string `json:"email" binding:"omitempty,email"`
	DisplayName *string `json:"displayName" binding:"omitempty,max=64"`
	FirstName   *string `json:"firstName" binding:"omitempty,max=64"`
	LastName    *string `json:"lastName" binding:"omitempty,max=64"`
}

// ApplyUpdate overwrites the allow-listed update fields on an
// existing record. Username, role, password and the secret fields are
// not reachable from this path.
func ApplyUpdate(m *Model, in *UpdateInput, avatarHost string) {
	if in.Email != nil {
		m.Email = strings.TrimSpace(*in.Email)
		m.ProfileImageURL = AvatarURL(avatarHost, m.Email)
	}
	if in.DisplayName != nil {
		m.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.FirstName != nil {
		m.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		m.LastName = strings.TrimSpace(*in.LastName)
	}
}

// AvatarURL derives an identicon avatar from the content hash of the
// lower-cased email.
func AvatarURL(host, email string) string {
	h := md5.Sum([]byte(strings.ToLower(strings.TrimSpace(email))))
	return fmt.Sprintf("https://%s/avatar/%x?d=identicon", host, h)
}
