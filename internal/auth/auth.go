// Package auth ověřuje identitu klienta a vrací model.Principal.
//
// Vydávání tokenů a správa uživatelů je mimo tuto službu. Externí správa identit
// zapisuje session do Valkey pod klíč <prefix><token> jako JSON principala,
// my ji pouze čteme.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/model"
)

// DefaultSessionPrefix je výchozí prefix klíčů session ve Valkey.
const DefaultSessionPrefix = "session:"

// Authenticator převádí token na principala.
// Neplatný nebo neznámý token vrací chybu třídy apperr.ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Principal, error)
}

// TokenFromRequest vytáhne bearer token z hlavičky Authorization,
// případně z query parametru "token" (prohlížeč u websocketu hlavičky nastavit nemůže).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// FromRequest je zkratka: token z requestu + ověření.
func FromRequest(r *http.Request, a Authenticator) (model.Principal, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return model.Principal{}, apperr.Unauthorized("chybí token")
	}
	return a.Authenticate(r.Context(), token)
}

// SessionAuthenticator čte session z Valkey.
type SessionAuthenticator struct {
	rdb    redis.Cmdable
	prefix string
}

func NewSessionAuthenticator(rdb redis.Cmdable, prefix string) *SessionAuthenticator {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &SessionAuthenticator{rdb: rdb, prefix: prefix}
}

func (a *SessionAuthenticator) Authenticate(ctx context.Context, token string) (model.Principal, error) {
	raw, err := a.rdb.Get(ctx, a.prefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Principal{}, apperr.Unauthorized("neplatná nebo expirovaná session")
	}
	if err != nil {
		return model.Principal{}, apperr.Transient("session lookup", err)
	}
	return decodePrincipal(raw)
}

func decodePrincipal(raw []byte) (model.Principal, error) {
	var p model.Principal
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.Principal{}, apperr.Unauthorized("poškozená session: %v", err)
	}
	if p.UserID == "" || !p.Role.Valid() {
		return model.Principal{}, apperr.Unauthorized("session bez uživatele nebo s neznámou rolí")
	}
	return p, nil
}

// Static je Authenticator nad pevnou tabulkou tokenů. Slouží pro testy
// a pro lokální běh se STORE=memory.
type Static struct {
	mu     sync.RWMutex
	tokens map[string]model.Principal
}

func NewStatic() *Static {
	return &Static{tokens: make(map[string]model.Principal)}
}

// Add zaregistruje token pro principala.
func (s *Static) Add(token string, p model.Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = p
}

func (s *Static) Authenticate(_ context.Context, token string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.tokens[token]
	if !ok {
		return model.Principal{}, apperr.Unauthorized("neznámý token")
	}
	return p, nil
}
