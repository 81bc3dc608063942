package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/logging"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"github.com/dmitrijs2005/mailkeeper/internal/timex"
	"github.com/google/uuid"
)

// Manager issues, checks and revokes session tokens. A user holds at most
// common.SessionTokenCapacity tokens; the oldest is evicted on overflow.
type Manager struct {
	store    Store
	log      logging.Logger
	now      timex.Clock
	newToken func() string
}

func NewManager(store Store, log logging.Logger) *Manager {
	return &Manager{
		store:    store,
		log:      log.With("module", "sessions"),
		now:      time.Now,
		newToken: uuid.NewString,
	}
}

// Issue mints a token for user, refreshing the cached snapshot and the
// record's TTL.
func (m *Manager) Issue(ctx context.Context, user models.UserView) (string, error) {
	token := m.newToken()
	var evicted string

	err := m.store.Mutate(ctx, user.ID, func(rec *Record) (*Record, Outcome, error) {
		if rec == nil {
			rec = newRecord()
		}
		evicted, _ = rec.Tokens.Push(token)
		rec.User = user
		rec.RefreshTime = m.now().UTC()
		return rec, Save, nil
	})
	if err != nil {
		m.log.Error(ctx, "issue session failed", "user_id", user.ID, "error", err)
		return "", err
	}

	if evicted != "" {
		m.log.Debug(ctx, "oldest session evicted", "user_id", user.ID)
	}
	return token, nil
}

// Revoke removes one token. Removing the last token deletes the record;
// otherwise the remaining TTL is kept. Unknown tokens are a no-op.
func (m *Manager) Revoke(ctx context.Context, userID int64, token string) error {
	return m.store.Mutate(ctx, userID, func(rec *Record) (*Record, Outcome, error) {
		if rec == nil || !rec.Tokens.Remove(token) {
			return nil, Skip, nil
		}
		if rec.Tokens.Len() == 0 {
			return nil, Remove, nil
		}
		return rec, SaveKeepTTL, nil
	})
}

// RevokeAll drops every session of the user.
func (m *Manager) RevokeAll(ctx context.Context, userID int64) error {
	if err := m.store.Delete(ctx, userID); err != nil {
		m.log.Error(ctx, "revoke all sessions failed", "user_id", userID, "error", err)
		return err
	}
	m.log.Info(ctx, "all sessions revoked", "user_id", userID)
	return nil
}

func (m *Manager) IsValid(ctx context.Context, userID int64, token string) (bool, error) {
	rec, err := m.store.Load(ctx, userID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Tokens.Contains(token), nil
}

// Lookup returns the cached user snapshot if token is live, or nil.
func (m *Manager) Lookup(ctx context.Context, userID int64, token string) (*models.UserView, error) {
	rec, err := m.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.Tokens.Contains(token) {
		return nil, nil
	}
	return &rec.User, nil
}
