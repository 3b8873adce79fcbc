package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/wiredraw-server/internal/core"
	"github.com/vovakirdan/wiredraw-server/internal/utils"
)

// frame is one decoded inbound message, or the protocol error it produced.
type frame struct {
	cmd core.Command
	err *core.CoreError
}

type conn struct {
	id  string
	m   *Manager
	t   Transport
	log zerolog.Logger

	box      *core.Outbox
	inbound  chan frame
	readErr  chan error
	writeErr chan error
	// wrote is signalled after each delivered frame; it counts as activity.
	wrote   chan struct{}
	limiter *rateLimiter

	mu       sync.RWMutex
	state    State
	identity core.Identity

	// room is owned by the worker goroutine.
	room string
}

func newConn(m *Manager, t Transport) *conn {
	id := utils.NewID()
	return &conn{
		id:       id,
		m:        m,
		t:        t,
		log:      m.log.With().Str("conn_id", id).Logger(),
		box:      core.NewOutbox(m.opts.OutboundQueue, m.opts.SlowConsumerTimeout),
		inbound:  make(chan frame, m.opts.InboundQueue),
		readErr:  make(chan error, 1),
		writeErr: make(chan error, 1),
		wrote:    make(chan struct{}, 1),
		limiter:  newRateLimiter(m.opts.MessagesPerMinute, time.Minute),
	}
}

func (c *conn) ID() string { return c.id }

func (c *conn) Identity() core.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

func (c *conn) Deliver(ev *core.Event) bool { return c.box.Offer(ev) }

func (c *conn) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *conn) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *conn) serve(ctx context.Context, token string) {
	c.log.Debug().Msg("connection opened")

	readCtx, stopRead := context.WithCancel(context.WithoutCancel(ctx))
	defer stopRead()

	var pumps errgroup.Group
	writerDone := make(chan struct{})
	pumps.Go(func() error {
		c.readLoop(readCtx)
		return nil
	})
	pumps.Go(func() error {
		defer close(writerDone)
		c.writeLoop()
		return nil
	})

	reason := CloseTransportError
	defer func() {
		c.setState(StateClosing)
		c.leave()
		c.box.Close()

		flush := time.NewTimer(c.m.opts.FlushTimeout + c.m.opts.WriteTimeout)
		select {
		case <-writerDone:
		case <-flush.C:
			c.log.Warn().Msg("flush deadline exceeded")
		}
		flush.Stop()

		if err := c.t.Close(reason); err != nil {
			c.log.Debug().Err(err).Msg("transport close")
		}
		stopRead()
		_ = pumps.Wait()

		c.setState(StateClosed)
		c.log.Info().Str("reason", string(reason)).Msg("connection closed")
	}()

	reason = c.run(ctx, token)
}

// run is the connection worker. It returns once the connection must close.
func (c *conn) run(ctx context.Context, token string) CloseReason {
	c.setState(StateConnecting)

	var authC <-chan time.Time
	if token != "" {
		if !c.authenticate(token) {
			return CloseAuthFailed
		}
	} else {
		authTimer := time.NewTimer(c.m.opts.AuthTimeout)
		defer authTimer.Stop()
		authC = authTimer.C
	}

	var idleC <-chan time.Time
	var idle *time.Timer
	if c.m.opts.IdleTimeout > 0 {
		idle = time.NewTimer(c.m.opts.IdleTimeout)
		defer idle.Stop()
		idleC = idle.C
	}

	for {
		select {
		case <-ctx.Done():
			if c.m.baseCtx.Err() != nil {
				return CloseShutdown
			}
			return CloseNormal
		case err := <-c.readErr:
			if errors.Is(err, io.EOF) {
				return CloseNormal
			}
			c.log.Warn().Err(err).Msg("read failed")
			return CloseTransportError
		case err := <-c.writeErr:
			c.log.Warn().Err(err).Msg("write failed")
			return CloseTransportError
		case <-c.box.Slow():
			c.log.Warn().Int("queued", c.box.Len()).Msg("slow consumer")
			return CloseSlowConsumer
		case <-authC:
			c.send(core.ErrorEvent(core.ErrCodeAuthTimeout, "no credential presented in time"))
			return CloseAuthTimeout
		case <-idleC:
			return CloseIdleTimeout
		case <-c.wrote:
			if idle != nil {
				idle.Reset(c.m.opts.IdleTimeout)
			}
		case f := <-c.inbound:
			if idle != nil {
				idle.Reset(c.m.opts.IdleTimeout)
			}
			if reason, done := c.handle(ctx, f); done {
				return reason
			}
			if authC != nil && c.State() != StateConnecting {
				authC = nil
			}
		}
	}
}

func (c *conn) handle(ctx context.Context, f frame) (CloseReason, bool) {
	state := c.State()

	if f.err != nil {
		if state == StateConnecting && f.err.Code != core.ErrCodeMalformedMessage {
			c.send(core.ErrorEvent(core.ErrCodeAuthFailed, "authenticate first"))
			return CloseAuthFailed, true
		}
		c.send(&core.Event{Kind: core.EventError, Error: f.err})
		return "", false
	}

	cmd := f.cmd
	if state == StateConnecting {
		if cmd.Kind != core.CommandAuth {
			c.send(core.ErrorEvent(core.ErrCodeAuthFailed, "authenticate first"))
			return CloseAuthFailed, true
		}
		if !c.authenticate(cmd.Token) {
			return CloseAuthFailed, true
		}
		return "", false
	}

	switch cmd.Kind {
	case core.CommandAuth:
		c.send(core.ErrorEvent(core.ErrCodeBadRequest, "already authenticated"))
	case core.CommandJoinRoom:
		c.join(ctx, cmd.Room)
	case core.CommandLeaveRoom:
		c.leave()
		c.setState(StateAuthenticated)
	case core.CommandPublish:
		c.publish(ctx, cmd.Payload)
	}
	return "", false
}

func (c *conn) authenticate(token string) bool {
	identity, err := c.m.validator.Validate(token)
	if err != nil {
		c.log.Info().Err(err).Msg("authentication failed")
		c.send(core.ErrorEvent(core.ErrCodeAuthFailed, "invalid credential"))
		return false
	}

	c.mu.Lock()
	c.identity = identity
	c.state = StateAuthenticated
	c.mu.Unlock()

	c.log.Info().Str("user_id", identity.UserID).Msg("authenticated")
	return true
}

func (c *conn) join(ctx context.Context, roomID string) {
	if c.room == roomID {
		return
	}
	if c.room != "" {
		c.leave()
	}

	joined, err := c.m.broadcaster.Join(ctx, c, roomID)
	if err != nil {
		c.send(&core.Event{Kind: core.EventError, Error: core.ErrorFor(err)})
		c.setState(StateAuthenticated)
		return
	}
	c.room = roomID
	c.setState(StateJoined)
	if joined {
		c.log.Info().Str("room", roomID).Msg("joined room")
	}
}

// leave drops the current room membership. Only the worker calls it, so a
// membership is released exactly once.
func (c *conn) leave() {
	if c.room == "" {
		return
	}
	if room, ok := c.m.broadcaster.Leave(c.id); ok {
		c.log.Info().Str("room", room).Msg("left room")
	}
	c.room = ""
}

func (c *conn) publish(ctx context.Context, payload []byte) {
	if c.room == "" {
		c.send(core.ErrorEvent(core.ErrCodeNotJoined, "join a room first"))
		return
	}
	if !c.limiter.allow() {
		c.send(core.ErrorEvent(core.ErrCodeRateLimited, "too many messages"))
		return
	}

	seq, err := c.m.broadcaster.Publish(ctx, c, c.room, payload)
	if err != nil {
		c.log.Warn().Err(err).Str("room", c.room).Msg("publish failed")
		c.send(&core.Event{Kind: core.EventError, Error: core.ErrorFor(err)})
		return
	}
	c.log.Debug().Str("room", c.room).Int64("seq", seq).Msg("published")
}

// send queues an event for this connection only.
func (c *conn) send(ev *core.Event) {
	if !c.box.Offer(ev) {
		c.log.Debug().Msg("outbox full, event dropped")
	}
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		inbound, err := c.t.Read(ctx)
		var f frame
		switch {
		case errors.Is(err, ErrMalformed):
			c.log.Debug().Err(err).Msg("malformed frame")
			f.err = core.NewError(core.ErrCodeMalformedMessage, "frame could not be parsed")
		case err != nil:
			select {
			case c.readErr <- err:
			default:
			}
			return
		default:
			f.cmd, f.err = inboundToCommand(inbound)
		}

		select {
		case c.inbound <- f:
		case <-ctx.Done():
			return
		}
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case ev := <-c.box.C():
			c.box.Ack()
			if err := c.write(context.Background(), ev); err != nil {
				select {
				case c.writeErr <- err:
				default:
				}
				return
			}
			select {
			case c.wrote <- struct{}{}:
			default:
			}
		case <-c.box.Done():
			c.flush()
			return
		}
	}
}

// flush writes whatever is still queued, bounded by the flush timeout.
func (c *conn) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), c.m.opts.FlushTimeout)
	defer cancel()
	for {
		select {
		case ev := <-c.box.C():
			if err := c.write(ctx, ev); err != nil {
				c.log.Debug().Err(err).Msg("flush aborted")
				return
			}
		default:
			return
		}
	}
}

func (c *conn) write(ctx context.Context, ev *core.Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.m.opts.WriteTimeout)
	defer cancel()
	return c.t.Write(ctx, outboundFromEvent(ev))
}

var _ core.Member = (*conn)(nil)
