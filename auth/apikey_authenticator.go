package auth

import (
	"context"
	"crypto/subtle"
	"strings"
)

// APIKeyAuthenticator implements authentication using static API keys. A
// configured key of the form "user:key" authenticates as user; a bare key
// authenticates as the super user.
type APIKeyAuthenticator struct {
	keys []apiKey
}

type apiKey struct {
	user  string
	token []byte
}

// NewAPIKeyAuthenticator creates a new API key authenticator
func NewAPIKeyAuthenticator(keys []string) *APIKeyAuthenticator {
	a := &APIKeyAuthenticator{}
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		user, token, found := strings.Cut(key, ":")
		if !found || user == "" || token == "" {
			user, token = SuperUser, key
		}
		a.keys = append(a.keys, apiKey{user: user, token: []byte(token)})
	}
	return a
}

// Authenticate validates a token and returns the associated user ID
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	// Remove "Bearer " prefix if present
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimSpace(token)

	if token == "" {
		return "", ErrAuthenticationFailed
	}

	candidate := []byte(token)
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare(candidate, key.token) == 1 {
			return key.user, nil
		}
	}
	return "", ErrAuthenticationFailed
}
