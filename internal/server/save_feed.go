package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iblal/cowrite-server/internal/collab"
	"go.uber.org/zap"
)

const defaultSaveFeedCapacity = 16

var errInvalidWatchDocument = errors.New("save feed: document id must be positive")

// SaveNotice is the payload a watcher receives for each stored state.
type SaveNotice struct {
	DocumentID int64
	EditorID   int64
	Bytes      int
	SavedAt    time.Time
}

// SaveFeedConfig configures a SaveFeed. Capacity is the per-watcher buffer.
type SaveFeedConfig struct {
	Capacity int
	Logger   *zap.Logger
}

// SaveFeed relays successful stores to the event streams watching the same
// document. A watcher whose buffer is full misses the notice; the store path
// never blocks on a slow stream.
type SaveFeed struct {
	capacity int
	logger   *zap.Logger

	mu     sync.Mutex
	topics map[int64]map[*SaveWatch]struct{}
}

// SaveWatch is a single stream's registration on a document.
type SaveWatch struct {
	feed       *SaveFeed
	documentID int64
	notices    chan SaveNotice
	missed     atomic.Int64
	stopOnce   sync.Once
}

func NewSaveFeed(cfg SaveFeedConfig) *SaveFeed {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultSaveFeedCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SaveFeed{
		capacity: capacity,
		logger:   logger,
		topics:   make(map[int64]map[*SaveWatch]struct{}),
	}
}

// Watch registers a watcher on the document. The caller must Stop it.
func (f *SaveFeed) Watch(documentID int64) (*SaveWatch, error) {
	if documentID <= 0 {
		return nil, errInvalidWatchDocument
	}
	watch := &SaveWatch{
		feed:       f,
		documentID: documentID,
		notices:    make(chan SaveNotice, f.capacity),
	}
	f.mu.Lock()
	topic, ok := f.topics[documentID]
	if !ok {
		topic = make(map[*SaveWatch]struct{})
		f.topics[documentID] = topic
	}
	topic[watch] = struct{}{}
	f.mu.Unlock()
	return watch, nil
}

// DocumentSaved implements collab.SaveListener.
func (f *SaveFeed) DocumentSaved(event collab.SavedEvent) {
	if event.DocumentID <= 0 {
		return
	}
	notice := SaveNotice{
		DocumentID: event.DocumentID,
		EditorID:   event.EditorID,
		Bytes:      event.Bytes,
		SavedAt:    event.SavedAt,
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for watch := range f.topics[event.DocumentID] {
		select {
		case watch.notices <- notice:
		default:
			watch.missed.Add(1)
		}
	}
}

func (f *SaveFeed) watchers(documentID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topics[documentID])
}

func (f *SaveFeed) remove(watch *SaveWatch) {
	f.mu.Lock()
	topic := f.topics[watch.documentID]
	delete(topic, watch)
	if len(topic) == 0 {
		delete(f.topics, watch.documentID)
	}
	close(watch.notices)
	f.mu.Unlock()
}

// Notices delivers save notices until Stop is called.
func (w *SaveWatch) Notices() <-chan SaveNotice {
	return w.notices
}

// Missed counts the notices dropped because the buffer was full.
func (w *SaveWatch) Missed() int64 {
	return w.missed.Load()
}

// Stop unregisters the watcher and closes its channel. It is idempotent.
func (w *SaveWatch) Stop() {
	w.stopOnce.Do(func() {
		w.feed.remove(w)
		if missed := w.Missed(); missed > 0 {
			w.feed.logger.Debug("save feed watcher missed notices",
				zap.Int64("document_id", w.documentID),
				zap.Int64("missed", missed))
		}
	})
}
