package models

import (
	"strings"
	"time"
)

// RegKey is an invite code granting a role to a limited number of sign-ups.
type RegKey struct {
	ID         int64
	Code       string
	RoleID     int64
	Count      int
	ExpireDate time.Time
	CreatedAt  time.Time
}

// Role is an authorization profile. AvailableDomains lists the mail domains
// the role may register under; an empty list or "*" allows every domain.
type Role struct {
	ID               int64
	Name             string
	AvailableDomains []string
	IsDefault        bool
	SendType         string
	SendCount        int
}

// AllowsEmail reports whether the role may hold an address at email's domain.
// Entries may be written with or without a leading "@" and match case-insensitively.
func (r *Role) AllowsEmail(email string) bool {
	if len(r.AvailableDomains) == 0 {
		return true
	}
	domain := Domain(email)
	for _, d := range r.AvailableDomains {
		d = normalizeDomainPattern(d)
		if d == "*" || (d != "" && d == domain) {
			return true
		}
	}
	return false
}

func normalizeDomainPattern(d string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(d), "@"))
}

type VerifyKind int

const (
	VerifyRegister VerifyKind = 1
	VerifyAdd      VerifyKind = 2
)
