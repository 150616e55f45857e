package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/geotask/task-service/internal/core/domain"
)

type stubDeviceRepo struct {
	tokens map[string]*domain.DeviceToken
}

func (r *stubDeviceRepo) Upsert(_ context.Context, d *domain.DeviceToken) error {
	if prev, ok := r.tokens[d.Token]; ok {
		d.CreatedAt = prev.CreatedAt
	}
	c := *d
	r.tokens[d.Token] = &c
	return nil
}

func (r *stubDeviceRepo) Delete(_ context.Context, token, userID string) (bool, error) {
	d, ok := r.tokens[token]
	if !ok || d.UserID != userID {
		return false, nil
	}
	delete(r.tokens, token)
	return true, nil
}

func (r *stubDeviceRepo) ListByUser(_ context.Context, userID string) ([]*domain.DeviceToken, error) {
	var out []*domain.DeviceToken
	for _, d := range r.tokens {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *stubDeviceRepo) FindByToken(_ context.Context, token string) (*domain.DeviceToken, error) {
	d, ok := r.tokens[token]
	if !ok {
		return nil, domain.ErrDeviceNotFound
	}
	return d, nil
}

func TestDeviceService_RegisterListUnregister(t *testing.T) {
	repo := &stubDeviceRepo{tokens: map[string]*domain.DeviceToken{}}
	svc := NewDeviceService(repo, zerolog.Nop())
	ctx := context.Background()

	if err := svc.Register(ctx, userActor, " tok-1 ", "iOS"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if d := repo.tokens["tok-1"]; d == nil || d.Platform != domain.PlatformIOS {
		t.Fatalf("token not stored normalised: %+v", d)
	}

	tokens, _ := svc.List(ctx, userActor)
	if len(tokens) != 1 {
		t.Errorf("expected 1 token, got %d", len(tokens))
	}

	// Another user cannot remove it.
	if ok, _ := svc.Unregister(ctx, adminActor, "tok-1"); ok {
		t.Error("other user must not unregister the token")
	}
	if ok, err := svc.Unregister(ctx, userActor, "tok-1"); !ok || err != nil {
		t.Errorf("expected removal, got %v %v", ok, err)
	}
}

func TestDeviceService_Register_MovesTokenToNewUser(t *testing.T) {
	repo := &stubDeviceRepo{tokens: map[string]*domain.DeviceToken{}}
	svc := NewDeviceService(repo, zerolog.Nop())
	ctx := context.Background()

	_ = svc.Register(ctx, userActor, "shared", domain.PlatformAndroid)
	_ = svc.Register(ctx, adminActor, "shared", domain.PlatformAndroid)

	if repo.tokens["shared"].UserID != adminActor.UserID {
		t.Errorf("token should belong to the last registrant, got %s", repo.tokens["shared"].UserID)
	}
}

func TestDeviceService_Register_Validation(t *testing.T) {
	svc := NewDeviceService(&stubDeviceRepo{tokens: map[string]*domain.DeviceToken{}}, zerolog.Nop())

	if err := svc.Register(context.Background(), userActor, "tok", "blackberry"); err != domain.ErrInvalidDevice {
		t.Errorf("expected ErrInvalidDevice for platform, got %v", err)
	}
	if err := svc.Register(context.Background(), userActor, "  ", domain.PlatformWeb); err != domain.ErrInvalidDevice {
		t.Errorf("expected ErrInvalidDevice for blank token, got %v", err)
	}
}

func TestDeviceService_Owner(t *testing.T) {
	repo := &stubDeviceRepo{tokens: map[string]*domain.DeviceToken{}}
	svc := NewDeviceService(repo, zerolog.Nop())
	ctx := context.Background()
	_ = svc.Register(ctx, userActor, "tok-9", domain.PlatformIOS)

	owner, err := svc.Owner(ctx, "tok-9")
	if err != nil || owner != userActor.UserID {
		t.Fatalf("expected %s, got %q (%v)", userActor.UserID, owner, err)
	}
	if _, err := svc.Owner(ctx, "missing"); err != domain.ErrDeviceNotFound {
		t.Errorf("expected ErrDeviceNotFound, got %v", err)
	}
	if _, err := svc.Owner(ctx, " "); err != domain.ErrDeviceNotFound {
		t.Errorf("expected ErrDeviceNotFound for blank token, got %v", err)
	}
}
