package ops

import (
	"time"

	"github.com/hpungsan/ccpro/internal/catalog"
	"github.com/hpungsan/ccpro/internal/config"
	"github.com/hpungsan/ccpro/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
// NextCursor is opaque and only valid with the same sort.
type Pagination struct {
	Limit      int    `json:"limit"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
	Total      int    `json:"total"`
}

// Actor is the signed-in caller of an operation.
type Actor struct {
	UserID string
	Email  string
}

// ActorFrom builds an Actor from a principal. A nil principal yields the
// anonymous actor.
func ActorFrom(p *catalog.Principal) Actor {
	if p == nil {
		return Actor{}
	}
	return Actor{UserID: p.ID, Email: catalog.NormalizeEmail(p.Email)}
}

// SignedIn reports whether the actor carries an identity.
func (a Actor) SignedIn() bool {
	return a.UserID != ""
}

func requireSignedIn(a Actor) error {
	if !a.SignedIn() {
		return errors.NewUnauthorized("sign in required")
	}
	return nil
}

// pageLimit applies the configured page size and the hard maximum.
func pageLimit(limit int, cfg *config.Config) int {
	if limit <= 0 {
		limit = DefaultListLimit
		if cfg != nil && cfg.PageSize > 0 {
			limit = cfg.PageSize
		}
	}
	return min(limit, MaxListLimit)
}

func now() int64 {
	return time.Now().Unix()
}
