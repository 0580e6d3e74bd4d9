// Package user holds the account model: identity, credentials, roles, and
// the per-user preference bag the rest of the system keeps settings in.
package user

import (
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

// Role is the site-wide access level of an account.
type Role string

const (
	// RoleAdmin administers the site: users, trees, site settings.
	RoleAdmin Role = "admin"
	// RoleManager manages tree content.
	RoleManager Role = "manager"
	// RoleMember is a signed-in user with read access.
	RoleMember Role = "member"
)

// ParseRole validates a role coming from a request or the database.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleManager, RoleMember:
		return r, nil
	default:
		return "", errors.New(errors.ErrCodeValidation, "unknown role").WithDetail(s)
	}
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// User is one account.
type User struct {
	ID               uuid.UUID         `json:"id"`
	Email            string            `json:"email"`
	Username         string            `json:"username"`
	RealName         string            `json:"real_name"`
	PasswordHash     string            `json:"-"`
	Role             Role              `json:"role"`
	Status           Status            `json:"status"`
	Language         string            `json:"language,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
	EmailVerifiedAt  *time.Time        `json:"email_verified_at,omitempty"`
	FailedLoginCount int               `json:"failed_login_count"`
	LockedUntil      *time.Time        `json:"locked_until,omitempty"`
	LastLoginAt      *time.Time        `json:"last_login_at,omitempty"`
	LastLoginIP      string            `json:"last_login_ip,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	DeletedAt        *time.Time        `json:"deleted_at,omitempty"`
}

// New builds an active member account with fresh identity and timestamps.
func New(email, username, realName string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Email:     NormalizeEmail(email),
		Username:  username,
		RealName:  realName,
		Role:      RoleMember,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin reports whether the account administers the site.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Active reports whether the account may be used at all.
func (u *User) Active() bool {
	return u.Status == StatusActive && u.DeletedAt == nil
}

// LockedAt reports whether a failed-login lockout is in force at now.
func (u *User) LockedAt(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// EmailVerified reports whether the address was confirmed.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// Preference returns a preference value, "" when unset.
func (u *User) Preference(name string) string {
	return u.Preferences[name]
}

// SetPreference sets a preference value; an empty value removes the entry.
func (u *User) SetPreference(name, value string) {
	if value == "" {
		delete(u.Preferences, name)
		return
	}
	if u.Preferences == nil {
		u.Preferences = make(map[string]string)
	}
	u.Preferences[name] = value
}

// ListFilter narrows and pages a user listing.
type ListFilter struct {
	Search string
	Role   Role
	Status Status
	Page   common.Pagination
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// MinPasswordLength is the floor enforced on every new password.
const MinPasswordLength = 8

// NormalizeEmail lowercases and trims an address so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address syntactically. The address must stand
// alone, without a display name.
func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return errors.New(errors.ErrCodeValidation, "invalid email address")
	}
	return nil
}

// ValidatePassword enforces the password policy.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.Newf(errors.ErrCodePasswordPolicy, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// ValidateUsername checks the login name: 2 to 64 characters, no leading or
// trailing space.
func ValidateUsername(username string) error {
	if username != strings.TrimSpace(username) {
		return errors.New(errors.ErrCodeValidation, "username must not start or end with spaces")
	}
	if n := len(username); n < 2 || n > 64 {
		return errors.New(errors.ErrCodeValidation, "username must be 2 to 64 characters")
	}
	return nil
}
