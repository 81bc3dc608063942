package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/credentials"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/policy"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
)

// LinkOutcome describes how an external identity was resolved to a user.
type LinkOutcome int

const (
	LinkedExisting LinkOutcome = iota + 1
	ReactivatedAndLinked
	MergedIntoExisting
	CreatedNew
)

func (o LinkOutcome) String() string {
	switch o {
	case LinkedExisting:
		return "linked_existing"
	case ReactivatedAndLinked:
		return "reactivated_and_linked"
	case MergedIntoExisting:
		return "merged_into_existing"
	case CreatedNew:
		return "created_new"
	default:
		return "unknown"
	}
}

// IdentityService maps identities asserted by the external provider onto
// local users.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	policy      policy.Source
	provider    string
	emailPrefix string
	now         timex.Clock
	log         logging.Logger
}

func NewIdentityService(db *sql.DB, m repomanager.RepositoryManager, pol policy.Source,
	provider, emailPrefix string, log logging.Logger) *IdentityService {
	return &IdentityService{
		db:          db,
		repomanager: m,
		policy:      pol,
		provider:    provider,
		emailPrefix: emailPrefix,
		now:         time.Now,
		log:         log.With("module", "identity", "provider", provider),
	}
}

// CanonicalEmail is the local address of an external identity: the address
// the provider vouches for, else <prefix>_<externalID>@<primary domain>.
func (s *IdentityService) CanonicalEmail(prof models.ExternalProfile, cfg policy.Config) string {
	if prof.Email != "" {
		return prof.Email
	}
	domain := cfg.PrimaryDomain()
	if domain == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s@%s", s.emailPrefix, prof.ExternalID, domain)
}

// ResolveExternal returns the live user for prof, linking, reactivating or
// creating one as needed, and records the login metadata.
func (s *IdentityService) ResolveExternal(ctx context.Context, prof models.ExternalProfile, meta models.LoginMeta) (*models.User, LinkOutcome, error) {
	if prof.ExternalID == "" || prof.Username == "" {
		return nil, 0, common.ErrIncompleteExternalProfile
	}

	cfg, err := s.policy.Current(ctx)
	if err != nil {
		return nil, 0, common.ErrorInternal
	}
	email := s.CanonicalEmail(prof, cfg)
	if email == "" {
		s.log.Error(ctx, "no primary mail domain configured")
		return nil, 0, fmt.Errorf("%w: no mail domain", common.ErrConfiguration)
	}

	var (
		user    *models.User
		outcome LinkOutcome
	)
	existing, err := s.repomanager.Users(s.db).GetByOAuth(ctx, s.provider, prof.ExternalID)
	switch {
	case err == nil:
		user, outcome, err = s.relink(ctx, existing, email)
	case errors.Is(err, common.ErrorNotFound):
		user, outcome, err = s.attach(ctx, cfg, prof, email)
	default:
		s.log.Error(ctx, "load user by external id failed", "error", err)
		return nil, 0, common.ErrorInternal
	}
	if err != nil {
		return nil, 0, err
	}

	repo := s.repomanager.Users(s.db)
	if err := repo.UpdateLoginInfo(ctx, user.ID, meta, s.now().UTC(), outcome == CreatedNew); err != nil {
		s.log.Error(ctx, "update login info failed", "user_id", user.ID, "error", err)
		return nil, 0, common.ErrorInternal
	}

	user, err = repo.GetByID(ctx, user.ID)
	if err != nil {
		s.log.Error(ctx, "reload user failed", "error", err)
		return nil, 0, common.ErrorInternal
	}

	s.log.Info(ctx, "external identity resolved", "user_id", user.ID, "outcome", outcome.String())
	return user, outcome, nil
}

// relink handles an identity already bound to a user, migrating the stored
// address when the canonical form changed.
func (s *IdentityService) relink(ctx context.Context, user *models.User, email string) (*models.User, LinkOutcome, error) {
	if user.IsDeleted {
		return nil, 0, common.ErrUserDeleted
	}
	if user.Status == models.UserStatusBanned {
		return nil, 0, common.ErrUserBanned
	}
	if user.Email == email {
		return user, LinkedExisting, nil
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdateEmail(ctx, user.ID, email); err != nil {
			return err
		}
		return s.repomanager.Accounts(tx).UpdateEmail(ctx, user.ID, user.Email, email)
	})
	if err != nil {
		s.log.Error(ctx, "migrate email failed", "user_id", user.ID, "from", user.Email, "to", email, "error", err)
		return nil, 0, common.ErrorInternal
	}

	s.log.Info(ctx, "email migrated", "user_id", user.ID, "from", user.Email, "to", email)
	user.Email = email
	return user, LinkedExisting, nil
}

// attach binds a new identity to the user owning email, or creates one.
func (s *IdentityService) attach(ctx context.Context, cfg policy.Config, prof models.ExternalProfile, email string) (*models.User, LinkOutcome, error) {
	if err := s.checkCapacity(ctx, cfg, prof.TrustLevel); err != nil {
		return nil, 0, err
	}

	link := users.OAuthLink{
		Provider:   s.provider,
		ExternalID: prof.ExternalID,
		Username:   prof.Username,
		TrustLevel: prof.TrustLevel,
		AvatarRef:  prof.AvatarRef,
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email, true)
	switch {
	case errors.Is(err, common.ErrorNotFound):
		user, err = s.create(ctx, prof, email)
		if err != nil {
			return nil, 0, err
		}
		return user, CreatedNew, nil

	case err != nil:
		s.log.Error(ctx, "load user by email failed", "error", err)
		return nil, 0, common.ErrorInternal

	case user.IsDeleted:
		err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repomanager.Users(tx).Reactivate(ctx, user.ID); err != nil {
				return err
			}
			if err := s.repomanager.Accounts(tx).Restore(ctx, user.ID, user.Email); err != nil {
				return err
			}
			return s.repomanager.Users(tx).LinkOAuth(ctx, user.ID, link)
		})
		if err != nil {
			return nil, 0, linkError(ctx, s.log, user.ID, err)
		}
		return user, ReactivatedAndLinked, nil

	case user.Status == models.UserStatusBanned:
		return nil, 0, common.ErrUserBanned

	default:
		// The local owner of email is not asked to confirm the merge.
		if err := s.repomanager.Users(s.db).LinkOAuth(ctx, user.ID, link); err != nil {
			return nil, 0, linkError(ctx, s.log, user.ID, err)
		}
		return user, MergedIntoExisting, nil
	}
}

// CanRegister reports whether a new external user of the given trust level
// would be admitted right now.
func (s *IdentityService) CanRegister(ctx context.Context, level int) (bool, error) {
	cfg, err := s.policy.Current(ctx)
	if err != nil {
		return false, common.ErrorInternal
	}

	err = s.checkCapacity(ctx, cfg, level)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrExternalRegistrationNotAllowed):
		return false, nil
	default:
		return false, err
	}
}

// checkCapacity enforces the per-tier switch and the global cap on
// externally registered users.
func (s *IdentityService) checkCapacity(ctx context.Context, cfg policy.Config, level int) error {
	if !cfg.TrustLevelAllowed(level) {
		s.log.Info(ctx, "external sign-up refused for trust level", "trust_level", level)
		return common.ErrExternalRegistrationNotAllowed
	}
	if cfg.ExternalMaxUsers <= 0 {
		return nil
	}

	stats, err := s.repomanager.Users(s.db).ExternalStats(ctx, s.provider)
	if err != nil {
		s.log.Error(ctx, "load external stats failed", "error", err)
		return common.ErrorInternal
	}
	if cfg.ExternalCapReached(stats.Total) {
		s.log.Info(ctx, "external user cap reached", "total", stats.Total, "max", cfg.ExternalMaxUsers)
		return common.ErrExternalRegistrationNotAllowed
	}
	return nil
}

func (s *IdentityService) create(ctx context.Context, prof models.ExternalProfile, email string) (*models.User, error) {
	role, err := s.repomanager.Roles(s.db).GetDefault(ctx)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrRoleNotFound
		}
		s.log.Error(ctx, "load default role failed", "error", err)
		return nil, common.ErrorInternal
	}

	pw, err := credentials.RandomPassword()
	if err != nil {
		return nil, common.ErrorInternal
	}
	salt, hash, err := credentials.HashPassword(pw)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Email:         email,
		PasswordHash:  hash,
		PasswordSalt:  salt,
		Status:        models.UserStatusNormal,
		RoleID:        role.ID,
		OAuthProvider: s.provider,
		OAuthID:       prof.ExternalID,
		OAuthUsername: prof.Username,
		TrustLevel:    prof.TrustLevel,
		AvatarRef:     prof.AvatarRef,
		ActiveTime:    s.now().UTC(),
	}
	name := prof.DisplayName
	if strings.TrimSpace(name) == "" {
		name = prof.Username
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return err
		}
		user = created
		_, err = s.repomanager.Accounts(tx).Create(ctx, &models.Account{UserID: created.ID, Email: email, Name: name})
		return err
	})
	if err != nil {
		return nil, provisionError(ctx, s.log, err)
	}
	return user, nil
}

func linkError(ctx context.Context, log logging.Logger, userID int64, err error) error {
	if errors.Is(err, common.ErrorConflict) {
		log.Warn(ctx, "external identity already linked elsewhere", "user_id", userID)
		return common.ErrAlreadyRegistered
	}
	log.Error(ctx, "link external identity failed", "user_id", userID, "error", err)
	return common.ErrorInternal
}
