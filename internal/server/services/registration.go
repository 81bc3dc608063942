package services

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/captcha"
	"github.com/dmitrijs2005/mailkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/policy"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
)

const (
	minPasswordLen  = 6
	maxPasswordLen  = 30
	maxLocalPartLen = 30
)

type RegisterRequest struct {
	Email        string
	Password     string
	RegKeyCode   string
	CaptchaToken string
	ClientIP     string
	UserAgent    string
}

type RegisterResult struct {
	// VerificationNowRequired tells the client that its next registration
	// from the same address must carry a CAPTCHA token.
	VerificationNowRequired bool `json:"verificationNowRequired"`
}

// keyResolution is the outcome of looking at the supplied registration key.
// A nil key means the default role applies.
type keyResolution struct {
	key *models.RegKey
}

func (r keyResolution) fromKey() bool { return r.key != nil }

// RegistrationService provisions local accounts.
type RegistrationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	policy      policy.Source
	captcha     captcha.Verifier
	loc         *time.Location
	now         timex.Clock
	log         logging.Logger
}

func NewRegistrationService(db *sql.DB, m repomanager.RepositoryManager, pol policy.Source,
	verifier captcha.Verifier, loc *time.Location, log logging.Logger) *RegistrationService {
	return &RegistrationService{
		db:          db,
		repomanager: m,
		policy:      pol,
		captcha:     verifier,
		loc:         loc,
		now:         time.Now,
		log:         log.With("module", "registration"),
	}
}

// Register validates req against the current policy and creates the user and
// its mailbox account. It never logs the user in.
func (s *RegistrationService) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	cfg, err := s.policy.Current(ctx)
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := validateRegistration(cfg, req); err != nil {
		return nil, err
	}

	res, err := s.resolveKey(ctx, cfg.RegKey, req.RegKeyCode)
	if err != nil {
		return nil, err
	}

	if err := s.checkAccountFree(ctx, req.Email); err != nil {
		return nil, err
	}

	role, err := s.resolveRole(ctx, res)
	if err != nil {
		return nil, err
	}
	if !role.AllowsEmail(req.Email) {
		if res.fromKey() {
			return nil, common.ErrNoDomainPermissionForKey
		}
		return nil, common.ErrNoDomainPermissionDefault
	}

	verified, err := s.verify(ctx, cfg, req)
	if err != nil {
		return nil, err
	}

	if err := s.provision(ctx, req, res, role); err != nil {
		return nil, err
	}

	result := &RegisterResult{VerificationNowRequired: verified}
	if cfg.RegisterVerify == models.VerifyCount && !verified {
		n, err := s.repomanager.VerifyRecords(s.db).Increment(ctx, req.ClientIP, models.VerifyRegister)
		if err != nil {
			// The account already exists; a lost increment only delays the CAPTCHA.
			s.log.Error(ctx, "increment verify record failed", "ip", req.ClientIP, "error", err)
			return result, nil
		}
		result.VerificationNowRequired = n >= cfg.RegVerifyCount
	}

	s.log.Info(ctx, "user registered", "email", req.Email, "reg_key", res.fromKey())
	return result, nil
}

func validateRegistration(cfg policy.Config, req RegisterRequest) error {
	if cfg.Register == models.RegisterClose {
		return common.ErrRegistrationDisabled
	}
	if !isEmail(req.Email) {
		return common.ErrInvalidEmail
	}

	n := utf8.RuneCountInString(req.Password)
	if n < minPasswordLen {
		return common.ErrPasswordTooShort
	}
	if n > maxPasswordLen {
		return common.ErrPasswordTooLong
	}

	if utf8.RuneCountInString(models.LocalPart(req.Email)) > maxLocalPartLen {
		return common.ErrLocalPartTooLong
	}
	if !cfg.DomainAllowed(models.Domain(req.Email)) {
		return common.ErrDomainNotAllowed
	}
	return nil
}

// isEmail accepts a bare RFC 5322 addr-spec with a dotted domain.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return false
	}
	domain := models.Domain(s)
	for i := 1; i < len(domain)-1; i++ {
		if domain[i] == '.' {
			return true
		}
	}
	return false
}

func (s *RegistrationService) resolveKey(ctx context.Context, mode models.RegKeyMode, code string) (keyResolution, error) {
	switch mode {
	case models.RegKeyOpen:
		if code == "" {
			return keyResolution{}, common.ErrRegKeyRequired
		}
		key, err := s.repomanager.RegKeys(s.db).GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return keyResolution{}, common.ErrRegKeyInvalid
			}
			s.log.Error(ctx, "load reg key failed", "error", err)
			return keyResolution{}, common.ErrorInternal
		}
		if key.Count <= 0 {
			return keyResolution{}, common.ErrRegKeyExhausted
		}
		if !s.keyLive(key) {
			return keyResolution{}, common.ErrRegKeyExpired
		}
		return keyResolution{key: key}, nil

	case models.RegKeyOptional:
		if code == "" {
			return keyResolution{}, nil
		}
		key, err := s.repomanager.RegKeys(s.db).GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return keyResolution{}, nil
			}
			s.log.Error(ctx, "load reg key failed", "error", err)
			return keyResolution{}, common.ErrorInternal
		}
		if key.Count <= 0 || !s.keyLive(key) {
			return keyResolution{}, nil
		}
		return keyResolution{key: key}, nil

	default:
		return keyResolution{}, nil
	}
}

// keyLive compares the key's expiry date with today's date in the business
// zone; a key expiring today is still usable.
func (s *RegistrationService) keyLive(key *models.RegKey) bool {
	return timex.NotBeforeDay(timex.DateIn(key.ExpireDate, s.loc), s.now(), s.loc)
}

func (s *RegistrationService) checkAccountFree(ctx context.Context, email string) error {
	acc, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email, true)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return nil
	case err != nil:
		s.log.Error(ctx, "load account failed", "error", err)
		return common.ErrorInternal
	case acc.IsDeleted:
		return common.ErrAccountSoftDeleted
	default:
		return common.ErrAlreadyRegistered
	}
}

func (s *RegistrationService) resolveRole(ctx context.Context, res keyResolution) (*models.Role, error) {
	roles := s.repomanager.Roles(s.db)

	var (
		role *models.Role
		err  error
	)
	if res.fromKey() {
		role, err = roles.GetByID(ctx, res.key.RoleID)
	} else {
		role, err = roles.GetDefault(ctx)
	}
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRoleNotFound
		}
		s.log.Error(ctx, "load role failed", "error", err)
		return nil, common.ErrorInternal
	}
	return role, nil
}

// verify runs the CAPTCHA check demanded by the policy and reports whether
// one was performed.
func (s *RegistrationService) verify(ctx context.Context, cfg policy.Config, req RegisterRequest) (bool, error) {
	switch cfg.RegisterVerify {
	case models.VerifyAlways:
		return true, s.checkCaptcha(ctx, req)
	case models.VerifyCount:
		n, err := s.repomanager.VerifyRecords(s.db).Count(ctx, req.ClientIP, models.VerifyRegister)
		if err != nil {
			s.log.Error(ctx, "load verify record failed", "error", err)
			return false, common.ErrorInternal
		}
		if n < cfg.RegVerifyCount {
			return false, nil
		}
		return true, s.checkCaptcha(ctx, req)
	default:
		return false, nil
	}
}

func (s *RegistrationService) checkCaptcha(ctx context.Context, req RegisterRequest) error {
	if req.CaptchaToken == "" {
		return common.ErrCaptchaRequired
	}
	err := s.captcha.Verify(ctx, req.CaptchaToken, req.ClientIP)
	var be *common.BizError
	if err == nil || errors.As(err, &be) {
		return err
	}
	s.log.Error(ctx, "captcha verification errored", "error", err)
	return common.ErrCaptchaUnavailable
}

// provision consumes the key and creates the user and account atomically.
func (s *RegistrationService) provision(ctx context.Context, req RegisterRequest, res keyResolution, role *models.Role) error {
	salt, hash, err := credentials.HashPassword(req.Password)
	if err != nil {
		s.log.Error(ctx, "hash password failed", "error", err)
		return common.ErrorInternal
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Status:       models.UserStatusNormal,
		RoleID:       role.ID,
		CreateIP:     req.ClientIP,
		ActiveTime:   s.now().UTC(),
		UserAgent:    req.UserAgent,
	}
	if res.fromKey() {
		user.RegKeyID = res.key.ID
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if res.fromKey() {
			ok, err := s.repomanager.RegKeys(tx).Decrement(ctx, res.key.Code)
			if err != nil {
				return err
			}
			if !ok {
				return common.ErrRegKeyExhausted
			}
		}

		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}

		_, err = s.repomanager.Accounts(tx).Create(ctx, &models.Account{
			UserID: created.ID,
			Email:  req.Email,
			Name:   models.LocalPart(req.Email),
		})
		return err
	})
	if err != nil {
		return provisionError(ctx, s.log, err)
	}
	return nil
}

// provisionError passes business errors through, turns unique violations
// into ErrAlreadyRegistered and hides everything else.
func provisionError(ctx context.Context, log logging.Logger, err error) error {
	var be *common.BizError
	switch {
	case errors.As(err, &be):
		return err
	case errors.Is(err, common.ErrorConflict):
		return common.ErrAlreadyRegistered
	default:
		log.Error(ctx, "provision user failed", "error", err)
		return common.ErrorInternal
	}
}
