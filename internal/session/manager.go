package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredraw-server/internal/core"
)

// Options bounds the lifetime and buffers of every connection.
type Options struct {
	AuthTimeout         time.Duration
	IdleTimeout         time.Duration
	WriteTimeout        time.Duration
	FlushTimeout        time.Duration
	SlowConsumerTimeout time.Duration
	OutboundQueue       int
	InboundQueue        int
	MessagesPerMinute   int
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		AuthTimeout:         10 * time.Second,
		IdleTimeout:         5 * time.Minute,
		WriteTimeout:        5 * time.Second,
		FlushTimeout:        2 * time.Second,
		SlowConsumerTimeout: 5 * time.Second,
		OutboundQueue:       64,
		InboundQueue:        16,
	}
}

// Manager owns the per-connection state machines.
type Manager struct {
	broadcaster *core.Broadcaster
	validator   TokenValidator
	opts        Options
	log         *zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	active atomic.Int64
}

// NewManager creates a connection manager.
func NewManager(b *core.Broadcaster, v TokenValidator, opts Options, logger *zerolog.Logger) *Manager {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	def := DefaultOptions()
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = def.AuthTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = def.FlushTimeout
	}
	if opts.SlowConsumerTimeout <= 0 {
		opts.SlowConsumerTimeout = def.SlowConsumerTimeout
	}
	if opts.OutboundQueue <= 0 {
		opts.OutboundQueue = def.OutboundQueue
	}
	if opts.InboundQueue <= 0 {
		opts.InboundQueue = def.InboundQueue
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		broadcaster: b,
		validator:   v,
		opts:        opts,
		log:         logger,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Serve drives one connection until it closes. token is a credential presented
// during the transport handshake and may be empty. Serve always closes t.
func (m *Manager) Serve(ctx context.Context, t Transport, token string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = t.Close(CloseShutdown)
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	m.active.Add(1)
	defer m.active.Add(-1)

	c := newConn(m, t)
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("connection worker panicked")
			_ = t.Close(CloseTransportError)
		}
	}()
	c.serve(ctx, token)
}

// Active reports the number of connections currently being served.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Shutdown closes every connection with a going-away reason and waits for them
// to finish, or for ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.log.Info().Msg("all connections closed")
		return nil
	case <-ctx.Done():
		m.log.Warn().Int("active", m.Active()).Msg("shutdown deadline reached with open connections")
		return ctx.Err()
	}
}
