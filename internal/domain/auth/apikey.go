package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active key matches the hash.
var ErrKeyNotFound = errors.New("api key not found")

// APIKeyInfo holds the identity bound to a validated API key. Every cart
// operation runs on behalf of UserID.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	UserID  string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying the authenticated key.
func WithUser(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, ctxKey{}, info)
}

// UserFrom returns the key stored by WithUser, or nil.
func UserFrom(ctx context.Context) *APIKeyInfo {
	info, _ := ctx.Value(ctxKey{}).(*APIKeyInfo)
	return info
}
