package documents

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iblal/cowrite-server/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testFixture struct {
	db         *gorm.DB
	repository *GormRepository
	clock      *steppingClock
}

// steppingClock advances one second per reading so ordering by timestamp is deterministic.
type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(time.Second)
	return c.current
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to resolve sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&users.User{}, &Document{}, &Collaborator{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return &testFixture{
		db:         db,
		repository: NewGormRepository(db),
		clock:      &steppingClock{current: time.Unix(1700000000, 0).UTC()},
	}
}

func (f *testFixture) mustUser(t *testing.T, email string) users.User {
	t.Helper()
	user := users.User{Email: email, PasswordHash: "hash"}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", email, err)
	}
	return user
}

func (f *testFixture) mustDocument(t *testing.T, ownerID int64, title string) Document {
	t.Helper()
	now := f.clock.Now()
	document := Document{Title: title, OwnerID: ownerID, StateBlob: []byte{}, CreatedAt: now, UpdatedAt: now}
	if err := f.db.Create(&document).Error; err != nil {
		t.Fatalf("failed to create document: %v", err)
	}
	return document
}

func (f *testFixture) mustCollaborator(t *testing.T, documentID int64, email string, permission Permission) {
	t.Helper()
	now := f.clock.Now()
	collaborator := Collaborator{DocumentID: documentID, Email: email, Permission: permission, CreatedAt: now, UpdatedAt: now}
	if err := f.db.Create(&collaborator).Error; err != nil {
		t.Fatalf("failed to create collaborator: %v", err)
	}
}

func (f *testFixture) collaboratorRows(t *testing.T, documentID int64) []Collaborator {
	t.Helper()
	var rows []Collaborator
	if err := f.db.Where("document_id = ?", documentID).Find(&rows).Error; err != nil {
		t.Fatalf("failed to list collaborators: %v", err)
	}
	return rows
}

func (f *testFixture) mustResolver(t *testing.T) *AccessResolver {
	t.Helper()
	resolver, err := NewAccessResolver(f.repository, nil)
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}
	return resolver
}

func bytesEqual(left, right []byte) bool {
	return bytes.Equal(left, right)
}
