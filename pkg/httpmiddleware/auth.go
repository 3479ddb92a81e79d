package httpmiddleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/domain/auth"
)

// APIKeyHeader is the request header carrying the raw API key. A bearer
// token in Authorization is accepted as well.
const APIKeyHeader = "api_key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, the form in
// which keys are stored.
func HashAPIKey(key string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate resolves the request's API key to a user and stores it in the
// context (auth.UserFrom). Requests without a valid key get 401.
func Authenticate(keys auth.Repository, pepper []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := apiKeyFrom(r)
			if key == "" {
				WriteError(w, http.StatusUnauthorized, "api key required")
				return
			}

			info, err := lookupKey(r, keys, key, pepper)
			if err != nil {
				if !errors.Is(err, auth.ErrKeyNotFound) {
					zctx.From(r.Context()).Error("Authenticate", zap.Error(err))
				}
				WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), info)))
		})
	}
}

func lookupKey(r *http.Request, keys auth.Repository, key string, pepper []byte) (*auth.APIKeyInfo, error) {
	hash := HashAPIKey(key, pepper)
	info, err := keys.FindByHash(r.Context(), hash)
	if err != nil {
		return nil, err
	}

	computed, _ := hex.DecodeString(hash)
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, auth.ErrKeyNotFound
	}
	if info.UserID == "" {
		return nil, errors.Errorf("api key %s has no user", info.ID)
	}
	return info, nil
}

func apiKeyFrom(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	if v, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
