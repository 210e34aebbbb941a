package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/store"
)

type recordingProvisioner struct {
	provisioned []string
}

func (p *recordingProvisioner) Provision(_ context.Context, characterID string) (store.Wallet, error) {
	p.provisioned = append(p.provisioned, characterID)
	return store.Wallet{ID: "player:" + characterID, Kind: store.WalletPlayer}, nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	wallets := &recordingProvisioner{}
	svc := NewService(NewMemoryRepository(), wallets)

	ctx := context.Background()
	ch, err := svc.Register(ctx, Credentials{Name: "Nerissa", PIN: "1234"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(wallets.provisioned) != 1 || wallets.provisioned[0] != ch.ID {
		t.Fatalf("expected wallet provisioned for %s, got %v", ch.ID, wallets.provisioned)
	}

	authed, err := svc.Authenticate(ctx, Credentials{Name: "nerissa", PIN: "1234"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != ch.ID || authed.LastLogin == nil {
		t.Fatalf("unexpected character %+v", authed)
	}
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Name: "Nerissa", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "NERISSA", PIN: "9999"}); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("expected duplicate name to fail, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "x", PIN: "1234"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected short name to fail, got %v", err)
	}
	if _, err := svc.Register(ctx, Credentials{Name: "Corvin", PIN: "12ab"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected non-numeric PIN to fail, got %v", err)
	}
}

func TestAuthenticateWrongPIN(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Credentials{Name: "Corvin", PIN: "1234"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Name: "Corvin", PIN: "4321"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, Credentials{Name: "Nobody", PIN: "1234"}); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for unknown name, got %v", err)
	}
}
