package credentials

import (
	"context"
	"sync"
	"time"

	"workspace-assistant/internal/common/errors"
)

// Store persists credential records keyed by user id, with a secondary
// lookup by email. Missing records yield a not_found AppError; an
// unreachable backend yields a connection AppError.
type Store interface {
	Find(ctx context.Context, userID string) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	// Upsert writes the whole record, last writer wins
	Upsert(ctx context.Context, record *Record) error
}

func errNotFound() error {
	return errors.NotFoundError("credential")
}

// IsNotFound reports whether err means no record exists
func IsNotFound(err error) bool {
	return errors.IsType(err, errors.ErrTypeNotFound)
}

// prepare validates record and returns a stamped copy ready to write
func prepare(record *Record, now time.Time) (*Record, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	c := record.Clone()
	c.Email = NormalizeEmail(c.Email)
	if c.TokenType == "" {
		c.TokenType = "Bearer"
	}
	c.UpdatedAt = now.UnixMilli()
	return c, nil
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

func (s *MemoryStore) Find(ctx context.Context, userID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[userID]
	if !ok {
		return nil, errNotFound()
	}
	return record.Clone(), nil
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, errNotFound()
	}
	return s.records[userID].Clone(), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	c, err := prepare(record, s.now())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if previous, ok := s.records[c.UserID]; ok && previous.Email != c.Email {
		delete(s.byEmail, previous.Email)
	}
	s.records[c.UserID] = c
	s.byEmail[c.Email] = c.UserID
	return nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
