// Package sessions keeps the per-user set of live session tokens in Redis.
package sessions

import (
	"time"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

// Record is the session state of one user, stored under session:<userID>.
type Record struct {
	Tokens      *TokenRing      `json:"tokens"`
	User        models.UserView `json:"user"`
	RefreshTime time.Time       `json:"refreshTime"`
}

func newRecord() *Record {
	return &Record{Tokens: NewTokenRing(0)}
}
