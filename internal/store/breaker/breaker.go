// Package breaker guards a history store with a circuit breaker so a failing backend
// fails publishes fast instead of holding a room's sequencing lock on every attempt.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/vovakirdan/wiredraw-server/internal/store"
)

// Settings configures when the breaker opens.
type Settings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Store decorates a store.HistoryStore.
type Store struct {
	next store.HistoryStore
	cb   *gobreaker.CircuitBreaker
}

// New wraps next. Closing the wrapper closes next.
func New(next store.HistoryStore, s Settings, logger *zerolog.Logger) *Store {
	maxFailures := s.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "history",
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("history breaker state changed")
		},
	})
	return &Store{next: next, cb: cb}
}

// Append forwards to the wrapped store unless the breaker is open.
func (s *Store) Append(ctx context.Context, e store.Entry) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.next.Append(ctx, e)
	})
	return err
}

// Recent forwards to the wrapped store unless the breaker is open.
func (s *Store) Recent(ctx context.Context, room string, limit int) ([]store.Entry, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.Recent(ctx, room, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]store.Entry), nil
}

// LastSeq forwards to the wrapped store unless the breaker is open.
func (s *Store) LastSeq(ctx context.Context, room string) (int64, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.next.LastSeq(ctx, room)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// State reports the breaker state. It is surfaced on the health endpoint.
func (s *Store) State() string {
	return s.cb.State().String()
}

// Close closes the wrapped store.
func (s *Store) Close() error {
	return s.next.Close()
}

var _ store.HistoryStore = (*Store)(nil)
