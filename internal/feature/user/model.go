package user

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// StringSet is a set of labels stored as a JSON array column.
type StringSet []string

func (s StringSet) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Without returns a copy with every occurrence of v removed.
func (s StringSet) Without(v string) StringSet {
	out := make(StringSet, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		s = StringSet{}
	}
	b, err := json.Marshal([]string(s))
	return string(b), err
}

func (s *StringSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(s))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(s))
	default:
		return fmt.Errorf("scan subroles: unsupported type %T", src)
	}
}

// Model is the persisted user row. Password, VerificationToken and
// ResetToken are secrets and must never leave the service; every
// outbound representation goes through Public().
type Model struct {
	ID              string    `gorm:"primaryKey;size:36"`
	Username        string    `gorm:"uniqueIndex:uq_users_username;size:64;not null"`
	Email           string    `gorm:"uniqueIndex:uq_users_email;size:191;not null"`
	Password        string    `gorm:"size:100;not null"` // bcrypt hash
	DisplayName     string    `gorm:"size:64"`
	FirstName       string    `gorm:"size:64"`
	LastName        string    `gorm:"size:64"`
	ProfileImageURL string    `gorm:"size:255"`
	Role            string    `gorm:"size:32;not null;default:user"`
	Subroles        StringSet `gorm:"type:json"`
	Verified        bool      `gorm:"not null;default:false"`

	VerificationToken   string `gorm:"size:64;index"`
	VerificationExpires *time.Time
	ResetToken          string `gorm:"size:64;index"`
	ResetExpires        *time.Time

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Model) TableName() string { return "users" }

// Public is the sanitized view of a user. It has no field for the
// password hash or either token, so it structurally cannot leak them.
type Public struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	DisplayName     string    `json:"displayName,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	ProfileImageURL string    `json:"profileImageURL,omitempty"`
	Role            string    `json:"role"`
	Subroles        StringSet `json:"subroles"`
	Verified        bool      `json:"verified"`
	CreatedAt       time.Time `json:"created"`
	UpdatedAt       time.Time `json:"updated"`
}

// Public sanitizes the record for external exposure.
func (m *Model) Public() Public {
	return Public{
		ID:              m.ID,
		Username:        m.Username,
		Email:           m.Email,
		DisplayName:     m.DisplayName,
		FirstName:       m.FirstName,
		LastName:        m.LastName,
		ProfileImageURL: m.ProfileImageURL,
		Role:            m.Role,
		Subroles:        m.Subroles,
		Verified:        m.Verified,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// PublicAll sanitizes a batch.
func PublicAll(ms []Model) []Public {
	out := make([]Public, 0, len(ms))
	for i := range ms {
		out = append(out, ms[i].Public())
	}
	return out
}

// PublicColumns is the projection used by list-style lookups; it
// matches the Public view so secrets are never read off the wire.
var PublicColumns = []string{
	"id", "username", "email", "display_name", "first_name", "last_name",
	"profile_image_url", "role", "subroles", "verified", "created_at", "updated_at",
}
