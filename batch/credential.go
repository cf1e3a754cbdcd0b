package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrEmptyToken = errors.New("authenticator returned an empty token")

// Authenticator logs identity in again and returns a fresh bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, identity string) (string, error)
}

type AuthenticatorFunc func(ctx context.Context, identity string) (string, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, identity string) (string, error) {
	return f(ctx, identity)
}

// Credential is a bearer token shared by every batch of a run. It is replaced
// in place on refresh; each replacement bumps the generation so callers that
// saw the same stale token trigger a single login.
type Credential struct {
	mu         sync.Mutex
	identity   string
	token      string
	generation uint64
}

func NewCredential(identity, token string) *Credential {
	return &Credential{identity: identity, token: token}
}

func (c *Credential) Identity() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Credential) Token() string {
	token, _ := c.current()
	return token
}

// Set replaces the token, for example after the caller logged in itself.
func (c *Credential) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.generation++
}

func (c *Credential) current() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.generation
}

// Refresh logs in again unless the token has already moved past stale.
// The lock is held across the login so concurrent refreshes collapse.
func (c *Credential) Refresh(ctx context.Context, auth Authenticator, stale uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != stale {
		return nil
	}
	token, err := auth.Authenticate(ctx, c.identity)
	if err != nil {
		return fmt.Errorf("re-authenticate %s: %w", c.identity, err)
	}
	if token == "" {
		return ErrEmptyToken
	}
	c.token = token
	c.generation++
	return nil
}
