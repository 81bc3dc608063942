// Package common defines shared constants and sentinel errors used across
// the server layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Error kinds. Every BizError unwraps to exactly one of these (ErrorNotFound,
// ErrorConflict and ErrorUnauthorized double as the not-found, conflict and
// authentication kinds).
var (
	ErrValidation      = errors.New("validation error")
	ErrPolicy          = errors.New("policy violation")
	ErrForbidden       = errors.New("forbidden")
	ErrExternalService = errors.New("external service error")
	ErrConfiguration   = errors.New("configuration error")
)

// BizError is a business rule failure carrying a stable message key for
// client-side localization.
type BizError struct {
	Kind error
	Key  string
}

func (e *BizError) Error() string { return e.Kind.Error() + ": " + e.Key }

// Unwrap exposes the error kind to errors.Is.
func (e *BizError) Unwrap() error { return e.Kind }

func newBizError(kind error, key string) *BizError {
	return &BizError{Kind: kind, Key: key}
}

// MessageKey returns the localization key of err, or "" if err is not a BizError.
func MessageKey(err error) string {
	var be *BizError
	if errors.As(err, &be) {
		return be.Key
	}
	return ""
}

// Registration errors.
var (
	ErrRegistrationDisabled      = newBizError(ErrPolicy, "regDisabled")
	ErrInvalidEmail              = newBizError(ErrValidation, "notEmail")
	ErrPasswordTooShort          = newBizError(ErrValidation, "pwdMinLengthLimit")
	ErrPasswordTooLong           = newBizError(ErrValidation, "pwdLengthLimit")
	ErrLocalPartTooLong          = newBizError(ErrValidation, "emailLengthLimit")
	ErrDomainNotAllowed          = newBizError(ErrPolicy, "notEmailDomain")
	ErrRegKeyRequired            = newBizError(ErrValidation, "emptyRegKey")
	ErrRegKeyInvalid             = newBizError(ErrorNotFound, "notExistRegKey")
	ErrRegKeyExhausted           = newBizError(ErrorConflict, "noRegKeyCount")
	ErrRegKeyExpired             = newBizError(ErrPolicy, "regKeyExpire")
	ErrAccountSoftDeleted        = newBizError(ErrorConflict, "isDelUser")
	ErrAlreadyRegistered         = newBizError(ErrorConflict, "isRegAccount")
	ErrNoDomainPermissionForKey  = newBizError(ErrForbidden, "noDomainPermRegKey")
	ErrNoDomainPermissionDefault = newBizError(ErrForbidden, "noDomainPermReg")
	ErrCaptchaRequired           = newBizError(ErrValidation, "captchaRequired")
	ErrCaptchaFailed             = newBizError(ErrValidation, "botVerifyFail")
	ErrCaptchaUnavailable        = newBizError(ErrExternalService, "botVerifyUnavailable")
	ErrCaptchaNotConfigured      = newBizError(ErrConfiguration, "botVerifyNotConfigured")
	ErrRoleNotFound              = newBizError(ErrorNotFound, "roleNotExist")
)

// Login and identity errors.
var (
	ErrEmailAndPasswordRequired       = newBizError(ErrValidation, "emailAndPwdEmpty")
	ErrUserNotFound                   = newBizError(ErrorNotFound, "notExistUser")
	ErrUserDeleted                    = newBizError(ErrorUnauthorized, "isDelUser")
	ErrUserBanned                     = newBizError(ErrorUnauthorized, "isBanUser")
	ErrIncorrectPassword              = newBizError(ErrorUnauthorized, "IncorrectPwd")
	ErrSessionRevoked                 = newBizError(ErrorUnauthorized, "sessionExpired")
	ErrIncompleteExternalProfile      = newBizError(ErrValidation, "oauthUserInfoIncomplete")
	ErrExternalRegistrationNotAllowed = newBizError(ErrPolicy, "linuxdoRegisterNotAllowed")
	ErrInvalidStatus                  = newBizError(ErrValidation, "invalidStatus")
	ErrInvalidMaxUsers                = newBizError(ErrValidation, "invalidMaxUsers")
	ErrPermissionDenied               = newBizError(ErrForbidden, "permDenied")
	ErrMalformedRequest               = newBizError(ErrValidation, "malformedRequest")
)

// OAuth errors.
var (
	ErrRedirectURIRequired        = newBizError(ErrValidation, "redirectUriRequired")
	ErrOAuthCallbackParamsMissing = newBizError(ErrValidation, "oauthCallbackParamsMissing")
	ErrOAuthNotConfigured         = newBizError(ErrConfiguration, "oauthNotConfigured")
	ErrOAuthExchangeFailed        = newBizError(ErrExternalService, "oauthTokenFailed")
	ErrOAuthProfileIncomplete     = newBizError(ErrExternalService, "oauthUserInfoFailed")
)
