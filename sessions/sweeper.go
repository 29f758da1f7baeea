package sessions

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionStore is the part of the store the sweeper needs.
type SessionStore interface {
	ListSessionIDs(ctx context.Context) ([]string, error)
	DeleteSession(ctx context.Context, id string) error
}

// Sweeper deletes stored sessions whose liveness key has expired.
type Sweeper struct {
	Registry *Registry
	Store    SessionStore
	Interval time.Duration
	Logger   *logrus.Logger
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.Sweep(ctx); err != nil {
				s.Logger.WithError(err).Warn("session sweep failed")
			} else if n > 0 {
				s.Logger.WithField("removed", n).Info("expired sessions removed")
			}
		}
	}
}

// Sweep runs one pass and reports how many sessions were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.Store.ListSessionIDs(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		alive, err := s.Registry.Alive(ctx, id)
		if err != nil {
			return removed, err
		}
		if alive {
			continue
		}
		if err := s.Store.DeleteSession(ctx, id); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
