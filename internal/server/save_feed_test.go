package server

import (
	"testing"
	"time"

	"github.com/Iblal/cowrite-server/internal/collab"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSaveFeedDeliversToWatcher(t *testing.T) {
	feed := NewSaveFeed(SaveFeedConfig{})
	watch, err := feed.Watch(42)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer watch.Stop()

	savedAt := time.Unix(1700000000, 0).UTC()
	feed.DocumentSaved(collab.SavedEvent{DocumentID: 42, EditorID: 7, Bytes: 3, SavedAt: savedAt})

	select {
	case notice := <-watch.Notices():
		if notice.EditorID != 7 || notice.Bytes != 3 || !notice.SavedAt.Equal(savedAt) {
			t.Fatalf("unexpected notice: %+v", notice)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected a notice within deadline")
	}
}

func TestSaveFeedIsolatesDocuments(t *testing.T) {
	feed := NewSaveFeed(SaveFeedConfig{})
	first, _ := feed.Watch(1)
	defer first.Stop()
	second, _ := feed.Watch(2)
	defer second.Stop()

	feed.DocumentSaved(collab.SavedEvent{DocumentID: 2, Bytes: 1})

	if len(first.Notices()) != 0 {
		t.Fatalf("did not expect a notice for an unrelated document")
	}
	if len(second.Notices()) != 1 {
		t.Fatalf("expected one notice for the watched document")
	}
}

func TestSaveFeedCountsMissedNotices(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	feed := NewSaveFeed(SaveFeedConfig{Capacity: 2, Logger: zap.New(core)})
	watch, _ := feed.Watch(5)

	for index := 0; index < 5; index++ {
		feed.DocumentSaved(collab.SavedEvent{DocumentID: 5, Bytes: index})
	}
	if len(watch.Notices()) != 2 {
		t.Fatalf("expected buffer to hold 2 notices, got %d", len(watch.Notices()))
	}
	if watch.Missed() != 3 {
		t.Fatalf("expected 3 missed notices, got %d", watch.Missed())
	}

	watch.Stop()
	if logs.FilterMessage("save feed watcher missed notices").Len() != 1 {
		t.Fatalf("expected the missed count to be logged on stop")
	}
}

func TestSaveFeedStopUnregistersAndCloses(t *testing.T) {
	feed := NewSaveFeed(SaveFeedConfig{})
	watch, _ := feed.Watch(9)
	other, _ := feed.Watch(9)
	defer other.Stop()
	if feed.watchers(9) != 2 {
		t.Fatalf("expected two watchers")
	}

	watch.Stop()
	watch.Stop()

	if feed.watchers(9) != 1 {
		t.Fatalf("expected one watcher after stop, got %d", feed.watchers(9))
	}
	if _, open := <-watch.Notices(); open {
		t.Fatalf("expected the stopped watcher channel to be closed")
	}
	feed.DocumentSaved(collab.SavedEvent{DocumentID: 9})
	if len(other.Notices()) != 1 {
		t.Fatalf("expected the remaining watcher to receive the notice")
	}
}

func TestSaveFeedRejectsInvalidDocument(t *testing.T) {
	feed := NewSaveFeed(SaveFeedConfig{})
	if _, err := feed.Watch(0); err == nil {
		t.Fatalf("expected an error for document 0")
	}
}
