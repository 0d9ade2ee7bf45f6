package collab

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iblal/cowrite-server/internal/documents"
	"go.uber.org/zap"
)

const (
	defaultStoreTimeout = 5 * time.Second
	defaultIdleTimeout  = 30 * time.Minute
	minSweepInterval    = time.Second
)

var (
	// ErrUnknownSession indicates that no open session has the identifier.
	ErrUnknownSession = errors.New("collab: unknown session")
	// ErrReadOnlySession indicates a mutation attempt on a read-only session.
	ErrReadOnlySession = errors.New("collab: session is read-only")
	// ErrSessionForbidden indicates that the caller is not the admitted user of the session.
	ErrSessionForbidden = errors.New("collab: session belongs to another user")

	errMissingAuthorizer = errors.New("collab: session authorizer is required")
	errMissingPort       = errors.New("collab: engine port is required")
)

// SavedEvent describes a successful state write.
type SavedEvent struct {
	DocumentID int64
	EditorID   int64
	SessionID  string
	Bytes      int
	SavedAt    time.Time
}

// SaveListener is notified after each successful state write.
type SaveListener interface {
	DocumentSaved(event SavedEvent)
}

// OpenedSession is the result of a successful open.
type OpenedSession struct {
	Context  SessionContext
	State    []byte
	HasState bool
}

// SessionManagerConfig describes the dependencies of a SessionManager.
// IdleTimeout bounds how long a session survives without a checkpoint.
type SessionManagerConfig struct {
	Authorizer   *SessionAuthorizer
	Port         *EnginePort
	IDProvider   IDProvider
	StoreTimeout time.Duration
	IdleTimeout  time.Duration
	Listener     SaveListener
	Clock        func() time.Time
	Logger       *zap.Logger
}

// sessionEntry serializes the writes of one session. closed is set under mu
// once the entry has left the registry; no write starts after that.
type sessionEntry struct {
	mu       sync.Mutex
	context  SessionContext
	closed   bool
	lastSeen atomic.Int64
}

func newSessionEntry(session SessionContext, now time.Time) *sessionEntry {
	entry := &sessionEntry{context: session}
	entry.touch(now)
	return entry
}

func (e *sessionEntry) touch(now time.Time) {
	e.lastSeen.Store(now.UnixNano())
}

func (e *sessionEntry) idleSince(cutoff time.Time) bool {
	return e.lastSeen.Load() < cutoff.UnixNano()
}

// SessionManager tracks open collaboration sessions and routes their state
// through the engine port. The registry lock is never held across I/O; the
// per-session lock is, so that a close waits for an in-flight checkpoint.
type SessionManager struct {
	authorizer   *SessionAuthorizer
	port         *EnginePort
	ids          IDProvider
	storeTimeout time.Duration
	idleTimeout  time.Duration
	listener     SaveListener
	clock        func() time.Time
	logger       *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Authorizer == nil {
		return nil, errMissingAuthorizer
	}
	if cfg.Port == nil {
		return nil, errMissingPort
	}
	ids := cfg.IDProvider
	if ids == nil {
		ids = NewUUIDProvider()
	}
	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		authorizer:   cfg.Authorizer,
		port:         cfg.Port,
		ids:          ids,
		storeTimeout: storeTimeout,
		idleTimeout:  idleTimeout,
		listener:     cfg.Listener,
		clock:        clock,
		logger:       logger,
		sessions:     make(map[string]*sessionEntry),
	}, nil
}

// Open admits the connection, loads the document state and registers the
// session context. HasState is false when the engine should start fresh.
func (m *SessionManager) Open(ctx context.Context, request AdmissionRequest) (OpenedSession, error) {
	session, err := m.authorizer.Authorize(ctx, request)
	if err != nil {
		return OpenedSession{}, err
	}

	state, found, err := m.port.Fetch(ctx, session.DocumentName)
	if err != nil {
		return OpenedSession{}, fmt.Errorf("collab: load state: %w", err)
	}

	sessionID, err := m.ids.NewID()
	if err != nil {
		return OpenedSession{}, fmt.Errorf("collab: session id: %w", err)
	}
	session.SessionID = sessionID

	m.mu.Lock()
	m.sessions[sessionID] = newSessionEntry(session, m.clock())
	m.mu.Unlock()

	m.logger.Info("collaboration session opened",
		zap.Int64("user_id", session.UserID),
		zap.Int64("document_id", session.DocumentID),
		zap.Bool("read_only", session.ReadOnly))
	return OpenedSession{Context: session, State: state, HasState: found}, nil
}

// Session returns the context of an open session.
func (m *SessionManager) Session(sessionID string) (SessionContext, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		return SessionContext{}, false
	}
	return entry.context, true
}

// ActiveSessions counts the open sessions on a document.
func (m *SessionManager) ActiveSessions(documentID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, entry := range m.sessions {
		if entry.context.DocumentID == documentID {
			count++
		}
	}
	return count
}

// Checkpoint persists the merged state produced by the engine for this
// session. Only the admitted user may write through it, and read-only
// sessions are refused before anything is written. A checkpoint racing a
// close either completes before the close's final store or fails with
// ErrUnknownSession. A persistence failure is reported in the result and
// leaves the session open.
func (m *SessionManager) Checkpoint(ctx context.Context, sessionID string, callerID int64, state []byte) (documents.StoreResult, error) {
	m.mu.RLock()
	entry, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return documents.StoreResult{}, ErrUnknownSession
	}
	if entry.context.UserID != callerID {
		m.logger.Warn("checkpoint refused for foreign caller",
			zap.Int64("caller_id", callerID),
			zap.Int64("document_id", entry.context.DocumentID))
		return documents.StoreResult{}, ErrSessionForbidden
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.closed {
		return documents.StoreResult{}, ErrUnknownSession
	}
	entry.touch(m.clock())
	if !entry.context.CanWrite() {
		m.logger.Warn("mutation suppressed for read-only session",
			zap.Int64("user_id", entry.context.UserID),
			zap.Int64("document_id", entry.context.DocumentID))
		return documents.StoreResult{}, ErrReadOnlySession
	}
	return m.store(ctx, entry.context, state), nil
}

// Close ends the session on behalf of its admitted user. When a final state
// is supplied for a writable session it is stored once, bounded by the store
// timeout and detached from the caller's cancellation; a failure is logged
// and not retried.
func (m *SessionManager) Close(ctx context.Context, sessionID string, callerID int64, finalState []byte, hasFinalState bool) (documents.StoreResult, error) {
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return documents.StoreResult{}, ErrUnknownSession
	}
	if entry.context.UserID != callerID {
		m.mu.Unlock()
		m.logger.Warn("close refused for foreign caller",
			zap.Int64("caller_id", callerID),
			zap.Int64("document_id", entry.context.DocumentID))
		return documents.StoreResult{}, ErrSessionForbidden
	}
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.closed {
		return documents.StoreResult{}, ErrUnknownSession
	}
	entry.closed = true

	session := entry.context
	var result documents.StoreResult
	if hasFinalState && session.CanWrite() {
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storeTimeout)
		result = m.store(storeCtx, session, finalState)
		cancel()
	}

	m.logger.Info("collaboration session closed",
		zap.Int64("user_id", session.UserID),
		zap.Int64("document_id", session.DocumentID),
		zap.Bool("final_store_failed", result.Failed()))
	return result, nil
}

// Sweep discards sessions idle for longer than the idle timeout and returns
// how many were removed. Expired sessions lose write access without a final
// store.
func (m *SessionManager) Sweep() int {
	cutoff := m.clock().Add(-m.idleTimeout)

	m.mu.Lock()
	expired := make([]*sessionEntry, 0)
	for sessionID, entry := range m.sessions {
		if entry.idleSince(cutoff) {
			expired = append(expired, entry)
			delete(m.sessions, sessionID)
		}
	}
	m.mu.Unlock()

	for _, entry := range expired {
		entry.mu.Lock()
		entry.closed = true
		entry.mu.Unlock()
		m.logger.Info("collaboration session expired",
			zap.Int64("user_id", entry.context.UserID),
			zap.Int64("document_id", entry.context.DocumentID),
			zap.Duration("idle_timeout", m.idleTimeout))
	}
	return len(expired)
}

// RunSweeper calls Sweep periodically until the context ends.
func (m *SessionManager) RunSweeper(ctx context.Context) {
	interval := m.idleTimeout / 4
	if interval < minSweepInterval {
		interval = minSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *SessionManager) store(ctx context.Context, session SessionContext, state []byte) documents.StoreResult {
	result := m.port.Store(ctx, session.DocumentName, state, &session)
	if result.Failed() || m.listener == nil {
		return result
	}
	m.listener.DocumentSaved(SavedEvent{
		DocumentID: session.DocumentID,
		EditorID:   session.UserID,
		SessionID:  session.SessionID,
		Bytes:      result.Bytes,
		SavedAt:    m.clock().UTC(),
	})
	return result
}
