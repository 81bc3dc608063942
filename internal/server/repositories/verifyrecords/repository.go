// Package verifyrecords counts attempts per source IP to decide when a
// CAPTCHA becomes mandatory.
package verifyrecords

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
)

type Repository interface {
	// Count returns the counter for (ip, kind), or 0 if none exists.
	Count(ctx context.Context, ip string, kind models.VerifyKind) (int, error)
	// Increment atomically adds one and returns the new value.
	Increment(ctx context.Context, ip string, kind models.VerifyKind) (int, error)
}
