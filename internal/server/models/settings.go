package models

// RegisterMode is the global registration switch.
type RegisterMode string

const (
	RegisterOpen  RegisterMode = "OPEN"
	RegisterClose RegisterMode = "CLOSE"
)

// RegKeyMode controls whether sign-up requires an invite code.
type RegKeyMode string

const (
	RegKeyOpen     RegKeyMode = "OPEN"
	RegKeyOptional RegKeyMode = "OPTIONAL"
	RegKeyClose    RegKeyMode = "CLOSE"
)

// VerifyMode controls when a CAPTCHA is demanded on registration.
type VerifyMode string

const (
	VerifyAlways VerifyMode = "ALWAYS"
	VerifyCount  VerifyMode = "COUNT"
	VerifyOff    VerifyMode = "OFF"
)

// TrustLevels is the number of external reputation tiers (0..4).
const TrustLevels = 5

// Settings is the single administrative settings row.
type Settings struct {
	Register          RegisterMode
	RegKey            RegKeyMode
	RegisterVerify    VerifyMode
	RegVerifyCount    int
	AddVerifyCount    int
	TrustLevelEnabled [TrustLevels]bool
	ExternalMaxUsers  int
}

// ExternalPolicy is the admin-editable subset of Settings that gates sign-up
// through the external identity provider.
type ExternalPolicy struct {
	TrustLevelEnabled [TrustLevels]bool `json:"trustLevelEnabled"`
	MaxUsers          int               `json:"maxUsers"`
}

// ExternalStats counts non-deleted external users per trust tier.
type ExternalStats struct {
	ByTrustLevel [TrustLevels]int `json:"byTrustLevel"`
	Total        int              `json:"total"`
}
