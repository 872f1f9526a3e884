package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/nnh2x/hemidi-authen/internal/core/domain"
)

func ptr[T any](v T) *T { return &v }

func TestUpdateProfileForbiddenForOtherUser(t *testing.T) {
	fx := newAuthFixture(t)
	fx.register(t, "alice", "code01")
	fx.register(t, "bob", "code02")
	alice := fx.userByName(t, "alice")
	bob := fx.userByName(t, "bob")

	_, err := fx.svc.UpdateProfile(context.Background(), bob.ID, domain.ProfileUpdate{UserName: ptr("hacked")}, alice)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateProfileSelfIgnoresPrivilegedFields(t *testing.T) {
	fx := newAuthFixture(t)
	fx.register(t, "alice", "code01")
	alice := fx.userByName(t, "alice")

	view, err := fx.svc.UpdateProfile(context.Background(), alice.ID, domain.ProfileUpdate{
		IsAdmin:  ptr(true),
		UserName: ptr("root"),
	}, alice)
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if view.IsAdmin || view.UserName != "alice" {
		t.Fatalf("privileged fields must be dropped for non-admins, got %+v", view)
	}
	if stored := fx.userByName(t, "alice"); stored.IsAdmin {
		t.Fatalf("isAdmin must not be persisted")
	}
}

func TestUpdateProfileSelfPasswordChange(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	fx.register(t, "alice", "code01")
	alice := fx.userByName(t, "alice")

	if _, err := fx.svc.UpdateProfile(ctx, alice.ID, domain.ProfileUpdate{NewPassword: ptr("short")}, alice); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for short password, got %v", err)
	}

	if _, err := fx.svc.UpdateProfile(ctx, alice.ID, domain.ProfileUpdate{NewPassword: ptr("new-password-1")}, alice); err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if _, err := fx.svc.Login(ctx, "alice", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password should stop working, got %v", err)
	}
	if _, err := fx.svc.Login(ctx, "alice", "new-password-1"); err != nil {
		t.Fatalf("new password should work: %v", err)
	}
}

func TestUpdateProfileAdmin(t *testing.T) {
	fx := newAuthFixture(t)
	ctx := context.Background()
	fx.register(t, "root", "admin1")
	fx.register(t, "alice", "code01")
	fx.register(t, "bob", "code02")

	admin := fx.userByName(t, "root")
	admin.IsAdmin = true
	alice := fx.userByName(t, "alice")

	view, err := fx.svc.UpdateProfile(ctx, alice.ID, domain.ProfileUpdate{IsAdmin: ptr(true), UserName: ptr("alicia")}, admin)
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if !view.IsAdmin || view.UserName != "alicia" {
		t.Fatalf("admin update not applied: %+v", view)
	}

	_, err = fx.svc.UpdateProfile(ctx, alice.ID, domain.ProfileUpdate{UserName: ptr("bob"), UserCode: ptr("code02")}, admin)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on rename collision, got %v", err)
	}

	names := fx.events.names()
	if names[len(names)-1] != domain.EventUserProfileUpdated {
		t.Fatalf("expected profile update event, got %v", names)
	}
}

func TestGetProfile(t *testing.T) {
	fx := newAuthFixture(t)
	fx.register(t, "alice", "code01")
	alice := fx.userByName(t, "alice")

	view, err := fx.svc.GetProfile(context.Background(), alice.ID)
	if err != nil || view.ID != alice.ID || view.UserCode != "code01" {
		t.Fatalf("unexpected profile %+v %v", view, err)
	}
	if _, err := fx.svc.GetProfile(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
