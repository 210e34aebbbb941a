package identity

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/store"
)

var (
	namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,23}$`)
	pinPattern  = regexp.MustCompile(`^[0-9]{4,8}$`)
)

// WalletProvisioner opens the player wallet of a new character.
type WalletProvisioner interface {
	Provision(ctx context.Context, characterID string) (store.Wallet, error)
}

// Service manages the character lifecycle.
type Service struct {
	repo    Repository
	wallets WalletProvisioner
}

// NewService creates a new identity service. wallets may be nil.
func NewService(repo Repository, wallets WalletProvisioner) *Service {
	return &Service{repo: repo, wallets: wallets}
}

// Register creates a character, stores a hashed PIN and opens its wallet.
func (s *Service) Register(ctx context.Context, creds Credentials) (Character, error) {
	if !namePattern.MatchString(creds.Name) {
		return Character{}, apperr.Validation("name must be 3-24 letters, digits or underscores")
	}
	if !pinPattern.MatchString(creds.PIN) {
		return Character{}, apperr.Validation("PIN must be 4 to 8 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Character{}, err
	}

	ch := Character{
		ID:        uuid.New().String(),
		Name:      creds.Name,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, ch); err != nil {
		if errors.Is(err, ErrNameTaken) {
			return Character{}, apperr.InvalidState("name %q is taken", creds.Name)
		}
		return Character{}, err
	}

	if s.wallets != nil {
		if _, err := s.wallets.Provision(ctx, ch.ID); err != nil {
			return Character{}, err
		}
	}
	return ch, nil
}

// Authenticate verifies a name and PIN.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Character, error) {
	ch, err := s.repo.FindByName(ctx, creds.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Character{}, apperr.Unauthorized("invalid name or PIN")
		}
		return Character{}, err
	}

	if err := bcrypt.CompareHashAndPassword(ch.PINHash, []byte(creds.PIN)); err != nil {
		return Character{}, apperr.Unauthorized("invalid name or PIN")
	}

	now := time.Now().UTC()
	if err := s.repo.TouchLogin(ctx, ch.ID, now); err != nil {
		return Character{}, err
	}
	ch.LastLogin = &now
	return ch, nil
}

// Lookup returns the character by id.
func (s *Service) Lookup(ctx context.Context, id string) (Character, error) {
	ch, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Character{}, apperr.NotFound("character %s not found", id)
	}
	return ch, err
}
