// Package models holds the persistent records of the identity core.
package models

import (
	"strings"
	"time"
)

type UserStatus int

const (
	UserStatusNormal UserStatus = 0
	UserStatusBanned UserStatus = 1
)

func (s UserStatus) Valid() bool {
	return s == UserStatusNormal || s == UserStatusBanned
}

// User is the identity record. Optional columns (OAuth fields, avatar,
// registration key) are stored as NULL when empty or zero.
type User struct {
	ID            int64
	Email         string
	PasswordHash  []byte
	PasswordSalt  []byte
	Status        UserStatus
	IsDeleted     bool
	RoleID        int64
	OAuthProvider string
	OAuthID       string
	OAuthUsername string
	TrustLevel    int
	AvatarRef     string
	RegKeyID      int64
	UserNumber    int64
	SendCount     int
	CreateIP      string
	ActiveIP      string
	ActiveTime    time.Time
	UserAgent     string
	CreatedAt     time.Time
}

// View returns the snapshot cached alongside a user's sessions.
func (u *User) View() UserView {
	return UserView{
		ID:            u.ID,
		Email:         u.Email,
		Status:        u.Status,
		RoleID:        u.RoleID,
		OAuthProvider: u.OAuthProvider,
		OAuthUsername: u.OAuthUsername,
		TrustLevel:    u.TrustLevel,
		AvatarRef:     u.AvatarRef,
		UserNumber:    u.UserNumber,
	}
}

// UserView is the public, credential-free projection of a User.
type UserView struct {
	ID            int64      `json:"userId"`
	Email         string     `json:"email"`
	Status        UserStatus `json:"status"`
	RoleID        int64      `json:"roleId"`
	OAuthProvider string     `json:"oauthProvider,omitempty"`
	OAuthUsername string     `json:"oauthUsername,omitempty"`
	TrustLevel    int        `json:"trustLevel"`
	AvatarRef     string     `json:"avatarRef,omitempty"`
	UserNumber    int64      `json:"userNumber"`
}

// LoginMeta is the request metadata recorded on registration and login.
type LoginMeta struct {
	IP        string
	UserAgent string
}

// Account is a mailbox address owned by a user.
type Account struct {
	ID        int64
	UserID    int64
	Email     string
	Name      string
	IsDeleted bool
}

// LocalPart returns the part of email before the last "@".
func LocalPart(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// Domain returns the lower-cased part of email after the last "@".
func Domain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return ""
}

// ExternalProfile is the identity asserted by the OAuth provider.
type ExternalProfile struct {
	ExternalID  string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"name"`
	Email       string `json:"email,omitempty"`
	TrustLevel  int    `json:"trustLevel"`
	AvatarRef   string `json:"avatarUrl,omitempty"`
}
