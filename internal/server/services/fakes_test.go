package services

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/dbx"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/regkeys"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/settings"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/users"
	"github.com/dmitrijs2005/mailkeeper/internal/server/repositories/verifyrecords"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTxDB returns a database that only hosts the transactions opened by
// dbx.WithTx; the data itself lives in memStore.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type verifyKey struct {
	ip   string
	kind models.VerifyKind
}

// memStore is an in-memory stand-in for the Postgres schema.
type memStore struct {
	mu sync.Mutex

	users       map[int64]*models.User
	accounts    []*models.Account
	keys        map[string]*models.RegKey
	roles       map[int64]*models.Role
	defaultRole int64
	verify      map[verifyKey]int
	settings    models.Settings

	nextUserID    int64
	nextAccountID int64
}

func newMemStore() *memStore {
	return &memStore{
		users: map[int64]*models.User{},
		keys:  map[string]*models.RegKey{},
		roles: map[int64]*models.Role{
			1: {ID: 1, Name: "user", AvailableDomains: []string{"*"}, IsDefault: true},
		},
		defaultRole: 1,
		verify:      map[verifyKey]int{},
	}
}

func (m *memStore) addUser(u models.User) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUserID++
	u.ID = m.nextUserID
	u.UserNumber = u.ID
	m.users[u.ID] = &u
	cp := u
	return &cp
}

func (m *memStore) addAccount(a models.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAccountID++
	a.ID = m.nextAccountID
	m.accounts = append(m.accounts, &a)
}

func (m *memStore) user(id int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.users[id]
}

func (m *memStore) usersWithEmail(email string) []models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out = append(out, *u)
		}
	}
	return out
}

func (m *memStore) accountsOf(userID int64) []models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memStore) keyCount(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[code].Count
}

func conflict(what string) error {
	return fmt.Errorf("db error: %w: duplicate %s", common.ErrorConflict, what)
}

type memUsers struct{ s *memStore }

func (r memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.users {
		if x.IsDeleted {
			continue
		}
		if strings.EqualFold(x.Email, u.Email) {
			return nil, conflict("email")
		}
		if u.OAuthID != "" && x.OAuthProvider == u.OAuthProvider && x.OAuthID == u.OAuthID {
			return nil, conflict("oauth id")
		}
	}
	r.s.nextUserID++
	cp := *u
	cp.ID = r.s.nextUserID
	cp.UserNumber = int64(len(r.s.users) + 1)
	cp.ActiveIP = cp.CreateIP
	cp.CreatedAt = time.Now()
	r.s.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (r memUsers) GetByEmail(_ context.Context, email string, includeDeleted bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted *models.User
	for _, u := range r.s.users {
		if !strings.EqualFold(u.Email, email) {
			continue
		}
		if !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
		deleted = u
	}
	if includeDeleted && deleted != nil {
		cp := *deleted
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) GetByOAuth(_ context.Context, provider, externalID string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if !u.IsDeleted && u.OAuthProvider == provider && u.OAuthID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memUsers) update(id int64, live bool, fn func(u *models.User)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok || (live && u.IsDeleted) {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (r memUsers) UpdateEmail(_ context.Context, id int64, email string) error {
	return r.update(id, false, func(u *models.User) { u.Email = email })
}

func (r memUsers) LinkOAuth(_ context.Context, id int64, link users.OAuthLink) error {
	return r.update(id, false, func(u *models.User) {
		u.OAuthProvider = link.Provider
		u.OAuthID = link.ExternalID
		u.OAuthUsername = link.Username
		u.TrustLevel = link.TrustLevel
		u.AvatarRef = link.AvatarRef
	})
}

func (r memUsers) Reactivate(_ context.Context, id int64) error {
	return r.update(id, false, func(u *models.User) {
		u.IsDeleted = false
		u.Status = models.UserStatusNormal
	})
}

func (r memUsers) SetStatus(_ context.Context, id int64, status models.UserStatus) error {
	return r.update(id, true, func(u *models.User) { u.Status = status })
}

func (r memUsers) SoftDelete(_ context.Context, id int64) error {
	return r.update(id, true, func(u *models.User) { u.IsDeleted = true })
}

func (r memUsers) UpdateLoginInfo(_ context.Context, id int64, meta models.LoginMeta, at time.Time, recordCreateIP bool) error {
	return r.update(id, false, func(u *models.User) {
		u.ActiveIP = meta.IP
		u.ActiveTime = at
		u.UserAgent = meta.UserAgent
		if recordCreateIP {
			u.CreateIP = meta.IP
		}
	})
}

func (r memUsers) ExternalStats(_ context.Context, provider string) (*models.ExternalStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := &models.ExternalStats{}
	for _, u := range r.s.users {
		if u.IsDeleted || u.OAuthProvider != provider {
			continue
		}
		if u.TrustLevel >= 0 && u.TrustLevel < models.TrustLevels {
			stats.ByTrustLevel[u.TrustLevel]++
		}
		stats.Total++
	}
	return stats, nil
}

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, x := range r.s.accounts {
		if !x.IsDeleted && strings.EqualFold(x.Email, a.Email) {
			return nil, conflict("account")
		}
	}
	r.s.nextAccountID++
	cp := *a
	cp.ID = r.s.nextAccountID
	r.s.accounts = append(r.s.accounts, &cp)
	out := cp
	return &out, nil
}

func (r memAccounts) GetByEmail(_ context.Context, email string, includeDeleted bool) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var deleted *models.Account
	for _, a := range r.s.accounts {
		if !strings.EqualFold(a.Email, email) {
			continue
		}
		if !a.IsDeleted {
			cp := *a
			return &cp, nil
		}
		deleted = a
	}
	if includeDeleted && deleted != nil {
		cp := *deleted
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (r memAccounts) UpdateEmail(_ context.Context, userID int64, oldEmail, newEmail string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserID == userID && strings.EqualFold(a.Email, oldEmail) {
			a.Email = newEmail
		}
	}
	return nil
}

func (r memAccounts) Restore(_ context.Context, userID int64, email string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserID == userID && strings.EqualFold(a.Email, email) {
			a.IsDeleted = false
		}
	}
	return nil
}

func (r memAccounts) SoftDeleteByUser(_ context.Context, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserID == userID {
			a.IsDeleted = true
		}
	}
	return nil
}

type memRegKeys struct{ s *memStore }

func (r memRegKeys) GetByCode(_ context.Context, code string) (*models.RegKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[code]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *k
	return &cp, nil
}

func (r memRegKeys) Decrement(_ context.Context, code string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k, ok := r.s.keys[code]
	if !ok || k.Count <= 0 {
		return false, nil
	}
	k.Count--
	return true, nil
}

type memRoles struct{ s *memStore }

func (r memRoles) GetByID(_ context.Context, id int64) (*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *role
	return &cp, nil
}

func (r memRoles) GetDefault(ctx context.Context) (*models.Role, error) {
	return r.GetByID(ctx, r.s.defaultRole)
}

type memVerify struct{ s *memStore }

func (r memVerify) Count(_ context.Context, ip string, kind models.VerifyKind) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.verify[verifyKey{ip, kind}], nil
}

func (r memVerify) Increment(_ context.Context, ip string, kind models.VerifyKind) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.verify[verifyKey{ip, kind}]++
	return r.s.verify[verifyKey{ip, kind}], nil
}

type memSettings struct{ s *memStore }

func (r memSettings) Get(context.Context) (*models.Settings, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := r.s.settings
	return &cp, nil
}

func (r memSettings) UpdateExternalPolicy(_ context.Context, p models.ExternalPolicy) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.settings.TrustLevelEnabled = p.TrustLevelEnabled
	r.s.settings.ExternalMaxUsers = p.MaxUsers
	return nil
}

// memManager hands out repositories over memStore regardless of the handle.
type memManager struct{ s *memStore }

func (m memManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m memManager) Users(dbx.DBTX) users.Repository                 { return memUsers(m) }
func (m memManager) Accounts(dbx.DBTX) accounts.Repository           { return memAccounts(m) }
func (m memManager) RegKeys(dbx.DBTX) regkeys.Repository             { return memRegKeys(m) }
func (m memManager) Roles(dbx.DBTX) roles.Repository                 { return memRoles(m) }
func (m memManager) VerifyRecords(dbx.DBTX) verifyrecords.Repository { return memVerify(m) }
func (m memManager) Settings(dbx.DBTX) settings.Repository           { return memSettings(m) }

type fakeCaptcha struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeCaptcha) Verify(_ context.Context, token, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if token == "" {
		return common.ErrCaptchaRequired
	}
	return f.err
}

func (f *fakeCaptcha) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
