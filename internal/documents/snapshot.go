package documents

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	opLoadState  = "documents.load_state"
	opStoreState = "documents.store_state"
)

// StoreResult reports the outcome of a best-effort state write. Callers may
// ignore it; failures have already been logged.
type StoreResult struct {
	DocumentID int64
	Bytes      int
	Err        error
}

// Failed reports whether the write did not reach the record store.
func (result StoreResult) Failed() bool {
	return result.Err != nil
}

// SnapshotStore moves the engine's opaque state between the live session and
// the document row. It never interprets the bytes.
type SnapshotStore struct {
	repository StateRepository
	clock      func() time.Time
	logger     *zap.Logger
}

// NewSnapshotStore constructs a SnapshotStore over the state port.
func NewSnapshotStore(repository StateRepository, clock func() time.Time, logger *zap.Logger) (*SnapshotStore, error) {
	if repository == nil {
		return nil, newServiceError(opStoreState, "missing_repository", errMissingRepository)
	}
	if clock == nil {
		clock = time.Now
	}
	return &SnapshotStore{repository: repository, clock: clock, logger: loggerOrDefault(logger)}, nil
}

// Load returns the stored state and true, or false when the document has no
// state yet. Unknown documents are reported as absent, not as errors; a
// zero-length blob is never returned as state.
func (s *SnapshotStore) Load(ctx context.Context, documentID int64) ([]byte, bool, error) {
	state, err := s.repository.LoadState(ctx, documentID)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, false, nil
	}
	if err != nil {
		logError(s.logger, opLoadState, "query_failed", err, zap.Int64(fieldDocumentID, documentID))
		return nil, false, newServiceError(opLoadState, "query_failed", err)
	}
	if len(state) == 0 {
		return nil, false, nil
	}
	return state, true, nil
}

// Store replaces the whole state blob. When editorID is positive it is stamped
// as last editor in the same write; otherwise the last editor is unchanged.
// Failures are logged and returned in the result, never raised.
func (s *SnapshotStore) Store(ctx context.Context, documentID int64, state []byte, editorID int64) StoreResult {
	result := StoreResult{DocumentID: documentID, Bytes: len(state)}
	err := s.repository.ReplaceState(ctx, documentID, state, editorID, s.clock().UTC())
	if err == nil {
		return result
	}

	reason := "update_failed"
	if errors.Is(err, ErrDocumentNotFound) {
		reason = "document_not_found"
	}
	fields := []zap.Field{zap.Int64(fieldDocumentID, documentID), zap.Int("bytes", len(state))}
	if editorID > 0 {
		fields = append(fields, zap.Int64(fieldEditorID, editorID))
	}
	logError(s.logger, opStoreState, reason, err, fields...)
	result.Err = newServiceError(opStoreState, reason, err)
	return result
}
