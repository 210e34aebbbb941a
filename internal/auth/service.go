package auth

import (
	"context"
	"errors"
	"time"

	"github.com/deepwater-mud/economy/internal/apperr"
	"github.com/deepwater-mud/economy/internal/identity"
)

// Config holds token signing settings.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service issues and verifies character tokens.
type Service struct {
	cfg    Config
	idRepo identity.Repository
	Clock  func() time.Time
}

func NewService(cfg Config, idRepo identity.Repository) *Service {
	return &Service{cfg: cfg, idRepo: idRepo, Clock: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login issues a token pair for an authenticated character.
func (s *Service) Login(ch identity.Character) (TokenPair, error) {
	access, err := s.sign(ch.ID, ch.Name, ch.TokenVersion, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(ch.ID, ch.Name, ch.TokenVersion, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTTL.Seconds())}, nil
}

func (s *Service) sign(sub, name string, version int, secret string, ttl time.Duration) (string, error) {
	now := s.Clock()
	claims := map[string]any{
		"sub":  sub,
		"name": name,
		"ver":  version,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return SignHS256(claims, []byte(secret))
}

// verify checks signature, expiry and token generation, returning the
// character the token was issued to.
func (s *Service) verify(ctx context.Context, token, secret string) (identity.Character, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret))
	if err != nil {
		return identity.Character{}, apperr.Unauthorized("invalid token")
	}
	exp, _ := claims["exp"].(float64)
	if s.Clock().Unix() >= int64(exp) {
		return identity.Character{}, apperr.Unauthorized("token expired")
	}
	sub, _ := claims["sub"].(string)
	verFloat, _ := claims["ver"].(float64)

	ch, err := s.idRepo.FindByID(ctx, sub)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return identity.Character{}, apperr.Unauthorized("character not found")
		}
		return identity.Character{}, err
	}
	if ch.TokenVersion != int(verFloat) {
		return identity.Character{}, apperr.Unauthorized("token invalidated")
	}
	return ch, nil
}

// Verify resolves an access token to its character id.
func (s *Service) Verify(ctx context.Context, accessToken string) (string, error) {
	ch, err := s.verify(ctx, accessToken, s.cfg.AccessSecret)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	ch, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(ch.ID, ch.Name, ch.TokenVersion, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTTL.Seconds()), nil
}

// Logout increments the token version so every outstanding token for the
// character stops verifying.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	ch, err := s.verify(ctx, refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, ch.ID, ch.TokenVersion+1)
}
