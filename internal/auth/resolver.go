package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/galactic-archives/internal/model"
)

// ErrUnauthenticated covers every reason a bearer token does not name a
// user. Callers must not tell the reasons apart.
var ErrUnauthenticated = errors.New("could not validate credentials")

type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type Resolver struct {
	tokens *Tokens
	users  UserFinder
}

func NewResolver(tokens *Tokens, users UserFinder) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve maps a bearer token to its user. Store failures are returned
// wrapped so the caller can distinguish an unreachable store.
func (r *Resolver) Resolve(ctx context.Context, bearer string) (*model.User, error) {
	email, ok := r.tokens.Verify(bearer)
	if !ok {
		return nil, ErrUnauthenticated
	}
	u, err := r.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	return u, nil
}

// Identity is the result of optional resolution. The zero value is anonymous.
type Identity struct {
	User *model.User
}

func (i Identity) Authenticated() bool { return i.User != nil }

// ResolveOptional never fails; any problem yields an anonymous identity.
func (r *Resolver) ResolveOptional(ctx context.Context, bearer string) Identity {
	if bearer == "" {
		return Identity{}
	}
	u, err := r.Resolve(ctx, bearer)
	if err != nil {
		return Identity{}
	}
	return Identity{User: u}
}
