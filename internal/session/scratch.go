// Package session holds per-session application state and the durable
// scratch store that survives restarts.
package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/hpungsan/ccpro/internal/budget"
	"github.com/hpungsan/ccpro/internal/catalog"
)

// ScratchFile is the scratch store file inside the base directory.
const ScratchFile = "scratch.db"

// Bucket keys
var (
	bucketSessions = []byte("sessions")
	bucketMeta     = []byte("meta")
	keyCurrent     = []byte("current")
)

// Scratch keys within a session bucket.
const (
	KeyBudget    = "budget"
	KeyPrincipal = "principal"
)

// NewID returns a new session id.
func NewID() string {
	return uuid.NewString()
}

// Scratch is a string key/value store scoped by session id, backed by bbolt.
type Scratch struct {
	db *bolt.DB
}

// OpenScratch opens (or creates) baseDir/scratch.db.
func OpenScratch(baseDir string) (*Scratch, error) {
	db, err := bolt.Open(filepath.Join(baseDir, ScratchFile), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSessions); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketMeta)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init: %w", err)
	}
	return &Scratch{db: db}, nil
}

// Close closes the underlying bbolt database.
func (s *Scratch) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key for a session.
func (s *Scratch) Get(sessionID, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		// Copy out: bbolt values are only valid inside the transaction
		value, found = string(v), true
		return nil
	})
	return value, found, err
}

// Set stores value under key for a session.
func (s *Scratch) Set(sessionID, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSessions).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Delete removes key from a session. Missing keys are not an error.
func (s *Scratch) Delete(sessionID, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// DropSession removes every key of a session.
func (s *Scratch) DropSession(sessionID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		err := tx.Bucket(bucketSessions).DeleteBucket([]byte(sessionID))
		if err == bolt.ErrBucketNotFound {
			return nil
		}
		return err
	})
}

// LoadBudget returns the session's budget. Absent or malformed data yields an
// empty budget; malformed data is logged.
func (s *Scratch) LoadBudget(sessionID string) []budget.LineItem {
	var items []budget.LineItem
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket([]byte(sessionID))
		if b != nil {
			items = decodeBudget(sessionID, b.Get([]byte(KeyBudget)))
		}
		return nil
	})
	if err != nil {
		slog.Warn("scratch budget read failed", "session", sessionID, "error", err)
	}
	if items == nil {
		items = []budget.LineItem{}
	}
	return items
}

// UpdateBudget applies fn to the session's budget and stores the result in
// one write transaction. An error from fn is returned as is and leaves the
// budget unchanged.
func (s *Scratch) UpdateBudget(sessionID string, fn func([]budget.LineItem) ([]budget.LineItem, error)) ([]budget.LineItem, error) {
	var out []budget.LineItem
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSessions).CreateBucketIfNotExists([]byte(sessionID))
		if err != nil {
			return err
		}
		updated, err := fn(decodeBudget(sessionID, b.Get([]byte(KeyBudget))))
		if err != nil {
			return err
		}
		if updated == nil {
			updated = []budget.LineItem{}
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(KeyBudget), data); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeBudget parses a stored budget. Nil or malformed data yields an empty
// budget.
func decodeBudget(sessionID string, raw []byte) []budget.LineItem {
	if raw == nil {
		return []budget.LineItem{}
	}
	var items []budget.LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		slog.Warn("scratch budget malformed, starting empty", "session", sessionID, "error", err)
		return []budget.LineItem{}
	}
	if items == nil {
		items = []budget.LineItem{}
	}
	return items
}

// SaveBudget persists the session's budget.
func (s *Scratch) SaveBudget(sessionID string, items []budget.LineItem) error {
	if items == nil {
		items = []budget.LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.Set(sessionID, KeyBudget, string(data))
}

// LoadPrincipal returns the signed-in principal, or nil when signed out.
func (s *Scratch) LoadPrincipal(sessionID string) (*catalog.Principal, error) {
	raw, ok, err := s.Get(sessionID, KeyPrincipal)
	if err != nil || !ok {
		return nil, err
	}
	var p catalog.Principal
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SavePrincipal records the signed-in principal.
func (s *Scratch) SavePrincipal(sessionID string, p catalog.Principal) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.Set(sessionID, KeyPrincipal, string(data))
}

// CurrentSession returns the session id used by the CLI, creating one on first use.
func (s *Scratch) CurrentSession() (string, error) {
	var id string
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if v := b.Get(keyCurrent); v != nil {
			id = string(v)
			return nil
		}
		id = NewID()
		return b.Put(keyCurrent, []byte(id))
	})
	return id, err
}

// ResetCurrentSession drops the CLI session and forgets its id.
func (s *Scratch) ResetCurrentSession() error {
	id, err := s.CurrentSession()
	if err != nil {
		return err
	}
	if err := s.DropSession(id); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Delete(keyCurrent)
	})
}
