package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrLoggedOut is returned by Run when the server terminally closed the
// session. Credentials have already been discarded; the process should exit
// cleanly.
var ErrLoggedOut = errors.New("session logged out")

// ErrQRExhausted is returned by Run when the operator never scanned within
// the configured number of QR challenges.
var ErrQRExhausted = errors.New("qr scan attempts exhausted")

// SessionFactory builds a fresh session: one Conn with its credential store
// loaded. Called once at startup and once per reconnect; each call fully
// supersedes the previous session.
type SessionFactory func(ctx context.Context) (Conn, CredentialStore, error)

// QRSink receives each pairing challenge for rendering on the operator
// surface. Fire and forget.
type QRSink func(code string, attempt int)

// Options bound the manager's retry behavior.
type Options struct {
	MaxQRAttempts        int
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxQRAttempts <= 0 {
		out.MaxQRAttempts = 3
	}
	if out.ReconnectBaseDelay <= 0 {
		out.ReconnectBaseDelay = time.Second
	}
	if out.ReconnectMaxDelay <= 0 {
		out.ReconnectMaxDelay = 30 * time.Second
	}
	return out
}

type closeKind int

const (
	closeTransient closeKind = iota
	closeTerminal
	closeQRExhausted
	closeFatal
)

// Manager owns at most one active session per process and drives the
// QR-handshake/reconnect state machine over the session's event stream.
type Manager struct {
	newSession SessionFactory
	handler    Handler
	qrSink     QRSink
	logger     *log.Logger
	opts       Options

	mu         sync.RWMutex
	phase      Phase
	qrAttempts int
	latestQR   string

	reconnects int
}

// NewManager creates a lifecycle manager. The handler and qrSink may be nil.
func NewManager(factory SessionFactory, handler Handler, qrSink QRSink, logger *log.Logger, opts Options) *Manager {
	return &Manager{
		newSession: factory,
		handler:    handler,
		qrSink:     qrSink,
		logger:     logger,
		opts:       opts.withDefaults(),
		phase:      PhaseIdle,
	}
}

// Phase returns the current connection phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// QRAttempts returns how many QR challenges the current session presented.
func (m *Manager) QRAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.qrAttempts
}

// LatestQR returns the most recent QR payload, or "" when none is pending.
func (m *Manager) LatestQR() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestQR
}

func (m *Manager) setPhase(p Phase) {
	m.mu.Lock()
	m.phase = p
	if p == PhaseOpen || p == PhaseClosed {
		m.latestQR = ""
	}
	m.mu.Unlock()
}

func (m *Manager) bumpQR(code string) int {
	m.mu.Lock()
	m.qrAttempts++
	m.latestQR = code
	n := m.qrAttempts
	m.mu.Unlock()
	return n
}

func (m *Manager) resetSessionState() {
	m.mu.Lock()
	m.qrAttempts = 0
	m.latestQR = ""
	m.mu.Unlock()
}

// Run drives the state machine until the session terminates. It returns
// ErrLoggedOut on a clean server-side logout, ErrQRExhausted when the
// operator never scanned, or another error on fatal failures. Transient
// disconnects are recovered internally by constructing a fresh session with
// capped exponential backoff.
func (m *Manager) Run(ctx context.Context) error {
	for {
		m.resetSessionState()
		m.setPhase(PhaseConnecting)

		conn, creds, err := m.newSession(ctx)
		if err != nil {
			m.setPhase(PhaseClosed)
			return fmt.Errorf("create session: %w", err)
		}

		events, err := conn.Dial(ctx)
		if err != nil {
			conn.Close()
			m.setPhase(PhaseClosed)
			return fmt.Errorf("connect: %w", err)
		}

		kind, pumpErr := m.pump(ctx, conn, creds, events)

		switch kind {
		case closeTerminal:
			// Server-side logout. Discard credentials (best effort) and stop.
			if derr := creds.Delete(); derr != nil {
				m.logger.Printf("Failed to delete credentials after logout: %v", derr)
			}
			conn.Close()
			return ErrLoggedOut

		case closeQRExhausted:
			m.logger.Printf("Forcing logout after %d unscanned QR challenges", m.opts.MaxQRAttempts)
			if lerr := conn.Logout(ctx); lerr != nil {
				m.logger.Printf("Forced logout failed: %v", lerr)
			}
			if derr := creds.Delete(); derr != nil {
				m.logger.Printf("Failed to delete credentials after forced logout: %v", derr)
			}
			conn.Close()
			return ErrQRExhausted

		case closeFatal:
			conn.Close()
			return pumpErr

		case closeTransient:
			conn.Close()
			m.reconnects++
			if m.opts.ReconnectMaxAttempts > 0 && m.reconnects > m.opts.ReconnectMaxAttempts {
				return fmt.Errorf("giving up after %d reconnect attempts", m.opts.ReconnectMaxAttempts)
			}
			delay := m.backoff(m.reconnects)
			m.logger.Printf("Transient disconnect, reconnecting in %s (attempt %d)", delay, m.reconnects)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// pump consumes the event stream of one session until it closes. All state
// transitions happen here, one event at a time.
func (m *Manager) pump(ctx context.Context, conn Conn, creds CredentialStore, events <-chan Event) (closeKind, error) {
	for {
		select {
		case <-ctx.Done():
			m.setPhase(PhaseClosed)
			return closeFatal, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// Stream ended without an explicit close event.
				m.setPhase(PhaseClosed)
				return closeTransient, nil
			}

			switch e := ev.(type) {
			case *QREvent:
				attempt := m.bumpQR(e.Code)
				if attempt > m.opts.MaxQRAttempts {
					m.setPhase(PhaseClosed)
					return closeQRExhausted, nil
				}
				m.setPhase(PhaseAwaitingScan)
				m.logger.Printf("QR challenge ready for scan (attempt %d/%d)", attempt, m.opts.MaxQRAttempts)
				if m.qrSink != nil {
					m.qrSink(e.Code, attempt)
				}

			case *CredentialsEvent:
				// Credentials rotated. Persist before consuming the next
				// event; a lost write here forces a repeat QR handshake on
				// the next restart.
				if err := m.persistCredentials(ctx, creds); err != nil {
					m.setPhase(PhaseClosed)
					return closeFatal, fmt.Errorf("persist credentials: %w", err)
				}
				m.setPhase(PhaseConnecting)

			case *ConnectedEvent:
				m.setPhase(PhaseOpen)
				m.reconnects = 0
				m.logger.Printf("Connection open")

			case *DisconnectedEvent:
				m.setPhase(PhaseClosed)
				if e.LoggedOut {
					m.logger.Printf("Logged out by server (reason: %s)", e.Reason)
					return closeTerminal, nil
				}
				m.logger.Printf("Connection closed (reason: %s)", e.Reason)
				return closeTransient, nil

			case *MessageEvent:
				if m.handler != nil {
					m.handler.HandleInbound(ctx, conn, e.Msg)
				}
			}
		}
	}
}

// persistCredentials saves with a small bounded retry. Persistence failure
// is fatal: continuing past an unsaved rotation would silently revert to the
// QR handshake on the next restart.
func (m *Manager) persistCredentials(ctx context.Context, creds CredentialStore) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		if err = creds.Save(ctx); err == nil {
			m.logger.Printf("Credentials persisted")
			return nil
		}
		m.logger.Printf("Credential save failed (attempt %d/3): %v", attempt, err)
		select {
		case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.opts.ReconnectBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.ReconnectMaxDelay {
			return m.opts.ReconnectMaxDelay
		}
	}
	if delay > m.opts.ReconnectMaxDelay {
		delay = m.opts.ReconnectMaxDelay
	}
	return delay
}
