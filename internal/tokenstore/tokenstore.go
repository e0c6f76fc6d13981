// Package tokenstore keeps the CLI's OAuth2 token in the OS keyring.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/aussiebroadwan/bluebeam/pkg/bluebeam"
)

// ErrNoToken is returned by Load when nothing has been saved yet.
var ErrNoToken = errors.New("no stored token; run 'bluebeam auth login'")

type Store struct {
	service string
	user    string
}

func New(service, user string) *Store {
	return &Store{service: service, user: user}
}

// record is the keyring payload.
type record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Store) Load(ctx context.Context) (bluebeam.Token, error) {
	if err := ctx.Err(); err != nil {
		return bluebeam.Token{}, err
	}

	raw, err := keyring.Get(s.service, s.user)
	if errors.Is(err, keyring.ErrNotFound) {
		return bluebeam.Token{}, ErrNoToken
	}
	if err != nil {
		return bluebeam.Token{}, fmt.Errorf("failed to read keyring: %w", err)
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return bluebeam.Token{}, fmt.Errorf("stored token is corrupt: %w", err)
	}

	return bluebeam.Token{
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		RefreshToken: rec.RefreshToken,
		Scope:        rec.Scope,
		ExpiresAt:    rec.ExpiresAt,
	}, nil
}

func (s *Store) Save(ctx context.Context, tok bluebeam.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(record{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Scope:        tok.Scope,
		ExpiresAt:    tok.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	if err := keyring.Set(s.service, s.user, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return nil
}

// Delete removes the stored token. Deleting a missing token is not an error.
func (s *Store) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(s.service, s.user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to clear keyring: %w", err)
	}
	return nil
}
