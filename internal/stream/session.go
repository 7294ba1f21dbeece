package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jeffypooo/lanmon/internal/auth"
	"github.com/jeffypooo/lanmon/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512

	// CloseInvalidToken is sent instead of accepting a subscription whose
	// token does not match.
	CloseInvalidToken = 4401
)

// State is the lifecycle position of a streaming session.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sampler produces the snapshots pushed to a session.
type Sampler interface {
	Sample(ctx context.Context) metrics.Snapshot
}

// Session pushes one snapshot per interval to a single viewer until the
// connection goes away. It is driven by exactly one goroutine (Run).
type Session struct {
	id       string
	conn     *websocket.Conn
	interval time.Duration
	logger   *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	state     atomic.Int32
	closeOnce sync.Once
	sent      atomic.Int64
}

func newSession(parent context.Context, id string, conn *websocket.Conn, interval time.Duration, logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		id:       id,
		conn:     conn,
		interval: interval,
		logger:   logger.With(zap.String("session", id)),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Sent is the number of snapshots written so far.
func (s *Session) Sent() int64 {
	return s.sent.Load()
}

// authenticate checks the presented token. On failure the viewer receives a
// CloseInvalidToken close frame, no snapshot, and the session is closed.
func (s *Session) authenticate(a *auth.Authenticator, token string) bool {
	s.state.Store(int32(StateAuthenticating))
	if a.Authenticate(token) {
		return true
	}
	msg := websocket.FormatCloseMessage(CloseInvalidToken, "invalid token")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.close()
	return false
}

// Run streams snapshots until the peer disconnects, a write fails or the
// session is shut down. Peer disconnects are ordinary termination and are
// not reported as errors.
func (s *Session) Run(sampler Sampler) {
	ctx := s.ctx
	defer s.close()

	s.state.Store(int32(StateStreaming))
	go s.readLoop()

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		snap := sampler.Sample(ctx)
		if ctx.Err() != nil {
			s.logger.Debug("session cancelled before send")
			return
		}
		if err := s.send(snap); err != nil {
			s.logEnd("send failed", err)
			return
		}

		timer.Reset(s.interval)
		select {
		case <-ctx.Done():
			s.logger.Info("session ended", zap.Int64("sent", s.Sent()))
			return
		case <-timer.C:
		}
	}
}

func (s *Session) send(snap metrics.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// readLoop drains inbound frames so control frames (close, ping) are
// processed. Viewers do not send application data; anything they do send is
// discarded. Any read error means the connection is gone.
func (s *Session) readLoop() {
	defer s.cancel()
	s.conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				s.logger.Debug("viewer connection dropped", zap.Error(err))
			}
			return
		}
	}
}

// Shutdown tells the viewer the agent is going away and stops the session.
func (s *Session) Shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "agent shutting down")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	s.cancel()
	s.close()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.state.Store(int32(StateClosed))
		_ = s.conn.Close()
	})
}

func (s *Session) logEnd(msg string, err error) {
	if isPeerGone(err) {
		s.logger.Info("viewer disconnected", zap.Int64("sent", s.Sent()))
		return
	}
	s.logger.Debug(msg, zap.Int64("sent", s.Sent()), zap.Error(err))
}

func isPeerGone(err error) bool {
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
