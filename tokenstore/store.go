package tokenstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Tokens is the persisted credential pair plus the authenticated email.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	Email        string
}

// Store exposes the session layout on top of a Backend.
type Store struct {
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Tokens reads the access token, refresh token and email. Missing entries are
// empty strings.
func (s *Store) Tokens(ctx context.Context) (Tokens, error) {
	var t Tokens
	var err error
	if t.AccessToken, err = s.get(ctx, KeyAccessToken); err != nil {
		return Tokens{}, err
	}
	if t.RefreshToken, err = s.get(ctx, KeyRefreshToken); err != nil {
		return Tokens{}, err
	}
	if t.Email, err = s.get(ctx, KeyUserEmail); err != nil {
		return Tokens{}, err
	}
	return t, nil
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyAccessToken)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, KeyRefreshToken)
}

func (s *Store) Email(ctx context.Context) (string, error) {
	return s.get(ctx, KeyUserEmail)
}

// SaveSession writes a verified session. An empty refresh token removes any
// previous one so a stale refresh token never outlives its session.
func (s *Store) SaveSession(ctx context.Context, access, refresh, email string) error {
	if strings.TrimSpace(access) == "" {
		return errors.New("tokenstore: access token is empty")
	}
	if err := s.backend.Set(ctx, KeyAccessToken, access, 0); err != nil {
		return err
	}
	if refresh != "" {
		if err := s.backend.Set(ctx, KeyRefreshToken, refresh, 0); err != nil {
			return err
		}
	} else if err := s.backend.Delete(ctx, KeyRefreshToken); err != nil {
		return err
	}
	if email != "" {
		return s.backend.Set(ctx, KeyUserEmail, email, 0)
	}
	return nil
}

// SaveAccessToken replaces only the access token. Used after a refresh.
func (s *Store) SaveAccessToken(ctx context.Context, access string) error {
	if strings.TrimSpace(access) == "" {
		return errors.New("tokenstore: access token is empty")
	}
	return s.backend.Set(ctx, KeyAccessToken, access, 0)
}

// Clear removes the tokens and the email. Device entries are kept.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Delete(ctx, KeyAccessToken, KeyRefreshToken, KeyUserEmail)
}

// Get and Set give raw access to keys outside the session slice, such as the
// device entries.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return s.backend.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.backend.Set(ctx, key, value, ttl)
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.backend.Delete(ctx, keys...)
}

// Watch streams changes of every key in the namespace.
func (s *Store) Watch(ctx context.Context) (<-chan Change, error) {
	return s.backend.Watch(ctx)
}

// IsSessionKey reports whether key belongs to the session slice.
func IsSessionKey(key string) bool {
	switch key {
	case KeyAccessToken, KeyRefreshToken, KeyUserEmail:
		return true
	}
	return false
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, _, err := s.backend.Get(ctx, key)
	return v, err
}
