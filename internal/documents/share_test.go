package documents

import (
	"context"
	"errors"
	"testing"
)

func mustShareManager(t *testing.T, fixture *testFixture) *ShareManager {
	t.Helper()
	manager, err := NewShareManager(fixture.repository, fixture.clock.Now, nil)
	if err != nil {
		t.Fatalf("failed to construct share manager: %v", err)
	}
	return manager
}

func TestShareIsIdempotent(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	document := fixture.mustDocument(t, owner.ID, "Doc")
	manager := mustShareManager(t, fixture)

	for attempt := 0; attempt < 2; attempt++ {
		collaborator, err := manager.Share(context.Background(), owner.ID, document.ID, "friend@example.com", "write")
		if err != nil {
			t.Fatalf("share attempt %d failed: %v", attempt, err)
		}
		if collaborator.Permission != PermissionWrite {
			t.Fatalf("unexpected permission %s", collaborator.Permission)
		}
	}

	rows := fixture.collaboratorRows(t, document.ID)
	if len(rows) != 1 {
		t.Fatalf("expected exactly one collaborator row, got %d", len(rows))
	}
	if rows[0].Email != "friend@example.com" || rows[0].Permission != PermissionWrite {
		t.Fatalf("unexpected collaborator row %+v", rows[0])
	}
}

func TestShareOverwritesPermission(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	document := fixture.mustDocument(t, owner.ID, "Doc")
	manager := mustShareManager(t, fixture)

	if _, err := manager.Share(context.Background(), owner.ID, document.ID, "friend@example.com", "write"); err != nil {
		t.Fatalf("initial share failed: %v", err)
	}
	collaborator, err := manager.Share(context.Background(), owner.ID, document.ID, " friend@example.com ", "read")
	if err != nil {
		t.Fatalf("downgrade failed: %v", err)
	}
	if collaborator.Permission != PermissionRead {
		t.Fatalf("expected read after downgrade, got %s", collaborator.Permission)
	}
	rows := fixture.collaboratorRows(t, document.ID)
	if len(rows) != 1 || rows[0].Permission != PermissionRead {
		t.Fatalf("unexpected collaborator rows %+v", rows)
	}
}

func TestShareByNonOwnerIsForbidden(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	intruder := fixture.mustUser(t, "intruder@example.com")
	document := fixture.mustDocument(t, owner.ID, "Doc")
	fixture.mustCollaborator(t, document.ID, "friend@example.com", PermissionRead)
	manager := mustShareManager(t, fixture)

	_, err := manager.Share(context.Background(), intruder.ID, document.ID, "friend@example.com", "write")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = manager.Share(context.Background(), intruder.ID, document.ID, intruder.Email, "write")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	rows := fixture.collaboratorRows(t, document.ID)
	if len(rows) != 1 || rows[0].Permission != PermissionRead {
		t.Fatalf("expected collaborator rows to be untouched, got %+v", rows)
	}
}

func TestShareOnMissingDocumentIsForbidden(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	manager := mustShareManager(t, fixture)

	_, err := manager.Share(context.Background(), owner.ID, 777, "friend@example.com", "read")
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected forbidden for missing document, got %v", err)
	}
	if errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected missing document to be indistinguishable from forbidden")
	}
}

func TestShareValidatesInput(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	document := fixture.mustDocument(t, owner.ID, "Doc")
	manager := mustShareManager(t, fixture)

	if _, err := manager.Share(context.Background(), owner.ID, document.ID, "friend@example.com", "owner"); !errors.Is(err, ErrInvalidPermission) {
		t.Fatalf("expected invalid permission, got %v", err)
	}
	if _, err := manager.Share(context.Background(), owner.ID, document.ID, "  ", "read"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected invalid email, got %v", err)
	}
	if rows := fixture.collaboratorRows(t, document.ID); len(rows) != 0 {
		t.Fatalf("expected no collaborator rows, got %+v", rows)
	}
}

func TestCollaboratorPermissionCheckConstraint(t *testing.T) {
	fixture := newTestFixture(t)
	owner := fixture.mustUser(t, "owner@example.com")
	document := fixture.mustDocument(t, owner.ID, "Doc")

	now := fixture.clock.Now()
	err := fixture.db.Create(&Collaborator{
		DocumentID: document.ID,
		Email:      "friend@example.com",
		Permission: Permission("admin"),
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error
	if err == nil {
		t.Fatalf("expected check constraint to reject invalid permission")
	}
}
