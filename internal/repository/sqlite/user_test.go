package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/platidea/internal/apperror"
	"github.com/sakif/platidea/internal/model"
)

func TestUserCreate_NormalisesEmail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := &model.User{Name: "Ana", Email: "  Ana@Example.COM ", PasswordHash: "hash"}
	if err := db.Users().Create(ctx, u); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if u.ID == "" || u.CreatedAt.IsZero() {
		t.Fatalf("Create() did not fill ID/CreatedAt: %+v", u)
	}
	if u.Email != "ana@example.com" {
		t.Errorf("Email = %q, want normalised", u.Email)
	}

	got, err := db.Users().GetByEmail(ctx, "ANA@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got.ID != u.ID || got.PasswordHash != "hash" || got.Name != "Ana" {
		t.Errorf("GetByEmail() = %+v", got)
	}
}

func TestUserCreate_DuplicateEmailConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	createTestUser(t, db, "ana")
	err := db.Users().Create(ctx, &model.User{Name: "Other", Email: "ANA@example.com"})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("Create() duplicate error = %v, want ErrConflict", err)
	}
}

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "bob")
	got, err := db.Users().GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Email != "bob@example.com" {
		t.Errorf("Email = %q", got.Email)
	}

	_, err = db.Users().GetByID(ctx, "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v, want ErrNotFound", err)
	}
}
