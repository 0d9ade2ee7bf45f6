package collab

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Iblal/cowrite-server/internal/auth"
	"github.com/Iblal/cowrite-server/internal/documents"
	"go.uber.org/zap"
)

// Rejection reasons reported to the connecting client.
const (
	ReasonNotAuthorized    = "not authorized"
	ReasonInvalidToken     = "invalid token"
	ReasonDocumentNotFound = "document not found"
	ReasonUserNotFound     = "user not found"
	ReasonInternal         = "internal error"
)

var (
	errMissingVerifier = errors.New("collab: credential verifier is required")
	errMissingResolver = errors.New("collab: access resolver is required")
)

// Stage names a step of the admission state machine.
type Stage int

const (
	StageStart Stage = iota
	StageCredentialChecked
	StageAccessResolved
	StageAdmitted
	StageRejected
)

func (stage Stage) String() string {
	switch stage {
	case StageStart:
		return "start"
	case StageCredentialChecked:
		return "credential_checked"
	case StageAccessResolved:
		return "access_resolved"
	case StageAdmitted:
		return "admitted"
	default:
		return "rejected"
	}
}

// TokenVerifier validates the bearer credential presented at session open.
type TokenVerifier interface {
	Verify(rawToken string) (auth.Identity, error)
}

// AccessResolver resolves the caller's access level on a document.
type AccessResolver interface {
	Resolve(ctx context.Context, userID, documentID int64) (documents.AccessLevel, error)
}

// AdmissionRequest is what a client presents when opening a session.
type AdmissionRequest struct {
	Token        string
	DocumentName string
}

// SessionContext is the per-connection state produced by admission. It lives
// only as long as the connection and is never persisted.
type SessionContext struct {
	SessionID    string
	UserID       int64
	DocumentID   int64
	DocumentName string
	Access       documents.AccessLevel
	ReadOnly     bool
	AdmittedAt   time.Time
}

// CanWrite reports whether mutations from this connection may be persisted.
func (session SessionContext) CanWrite() bool {
	return !session.ReadOnly && session.Access.Allows(documents.AccessWrite)
}

// AdmissionError is a refused admission. Reason is safe to show the client;
// Stage is the last state reached before rejection.
type AdmissionError struct {
	Reason string
	Stage  Stage
	Err    error
}

func (e *AdmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("collab: admission rejected after %s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("collab: admission rejected after %s: %s: %v", e.Stage, e.Reason, e.Err)
}

func (e *AdmissionError) Unwrap() error {
	return e.Err
}

// SessionAuthorizer decides, once per connection, whether a session may open
// and with which capability. Decisions are not re-evaluated mid-session.
type SessionAuthorizer struct {
	verifier TokenVerifier
	resolver AccessResolver
	clock    func() time.Time
	logger   *zap.Logger
}

// NewSessionAuthorizer constructs an authorizer from its collaborators.
func NewSessionAuthorizer(verifier TokenVerifier, resolver AccessResolver, clock func() time.Time, logger *zap.Logger) (*SessionAuthorizer, error) {
	if verifier == nil {
		return nil, errMissingVerifier
	}
	if resolver == nil {
		return nil, errMissingResolver
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionAuthorizer{verifier: verifier, resolver: resolver, clock: clock, logger: logger}, nil
}

// Authorize runs Start -> CredentialChecked -> AccessResolved -> Admitted.
// Any failure ends in Rejected with an *AdmissionError; a read grant is an
// admission with ReadOnly set, not a failure.
func (a *SessionAuthorizer) Authorize(ctx context.Context, request AdmissionRequest) (SessionContext, error) {
	stage := StageStart
	if strings.TrimSpace(request.Token) == "" {
		return SessionContext{}, a.reject(stage, ReasonNotAuthorized, auth.ErrMissingToken, request)
	}

	identity, err := a.verifier.Verify(request.Token)
	if err != nil {
		reason := ReasonInvalidToken
		if errors.Is(err, auth.ErrMissingToken) {
			reason = ReasonNotAuthorized
		}
		return SessionContext{}, a.reject(stage, reason, err, request)
	}
	stage = StageCredentialChecked

	documentID, err := documents.ParseDocumentLabel(request.DocumentName)
	if err != nil {
		return SessionContext{}, a.reject(stage, ReasonDocumentNotFound, err, request)
	}

	level, err := a.resolver.Resolve(ctx, identity.UserID, documentID)
	if err != nil {
		return SessionContext{}, a.reject(stage, resolutionReason(err), err, request)
	}
	stage = StageAccessResolved

	if !level.Allows(documents.AccessRead) {
		return SessionContext{}, a.reject(stage, ReasonNotAuthorized, documents.ErrForbidden, request)
	}

	session := SessionContext{
		UserID:       identity.UserID,
		DocumentID:   documentID,
		DocumentName: request.DocumentName,
		Access:       level,
		ReadOnly:     !level.Allows(documents.AccessWrite),
		AdmittedAt:   a.clock().UTC(),
	}
	a.logger.Debug("collaboration session admitted",
		zap.Int64("user_id", session.UserID),
		zap.Int64("document_id", session.DocumentID),
		zap.String("access", session.Access.String()),
		zap.Bool("read_only", session.ReadOnly))
	return session, nil
}

func resolutionReason(err error) string {
	switch {
	case errors.Is(err, documents.ErrDocumentNotFound):
		return ReasonDocumentNotFound
	case errors.Is(err, documents.ErrUserNotFound):
		return ReasonUserNotFound
	case errors.Is(err, documents.ErrForbidden):
		return ReasonNotAuthorized
	default:
		return ReasonInternal
	}
}

func (a *SessionAuthorizer) reject(stage Stage, reason string, cause error, request AdmissionRequest) error {
	fields := []zap.Field{
		zap.String("stage", stage.String()),
		zap.String("reason", reason),
		zap.String("document_name", request.DocumentName),
		zap.Error(cause),
	}
	if reason == ReasonInternal {
		a.logger.Error("collaboration admission failed", fields...)
	} else {
		a.logger.Info("collaboration admission rejected", fields...)
	}
	return &AdmissionError{Reason: reason, Stage: stage, Err: cause}
}
