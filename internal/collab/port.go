package collab

import (
	"context"

	"github.com/Iblal/cowrite-server/internal/documents"
	"go.uber.org/zap"
)

// SnapshotPersistence is the durable side of the engine's state. It is
// satisfied by *documents.SnapshotStore.
type SnapshotPersistence interface {
	Load(ctx context.Context, documentID int64) ([]byte, bool, error)
	Store(ctx context.Context, documentID int64, state []byte, editorID int64) documents.StoreResult
}

// EnginePort exposes fetch and store to the synchronization engine, which
// addresses documents by their string label.
type EnginePort struct {
	snapshots SnapshotPersistence
	logger    *zap.Logger
}

// NewEnginePort wraps the snapshot persistence.
func NewEnginePort(snapshots SnapshotPersistence, logger *zap.Logger) *EnginePort {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnginePort{snapshots: snapshots, logger: logger}
}

// Fetch returns the stored state for the label. Labels that are not document
// ids are reported as absent.
func (p *EnginePort) Fetch(ctx context.Context, documentName string) ([]byte, bool, error) {
	documentID, err := documents.ParseDocumentLabel(documentName)
	if err != nil {
		p.logger.Debug("fetch ignored for non-numeric document label", zap.String("document_name", documentName))
		return nil, false, nil
	}
	return p.snapshots.Load(ctx, documentID)
}

// Store persists the merged state for the label, stamping the session's user
// as last editor when a session is supplied. Labels that are not document ids
// are a silent no-op.
func (p *EnginePort) Store(ctx context.Context, documentName string, state []byte, session *SessionContext) documents.StoreResult {
	documentID, err := documents.ParseDocumentLabel(documentName)
	if err != nil {
		p.logger.Debug("store ignored for non-numeric document label", zap.String("document_name", documentName))
		return documents.StoreResult{}
	}
	var editorID int64
	if session != nil {
		editorID = session.UserID
	}
	return p.snapshots.Store(ctx, documentID, state, editorID)
}
