/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package session is the SessionGate boundary glue: for each HTTP request
// it yields (caller id, caller role), backed by a signed cookie rather than
// anything the broker, policy evaluator, or audit log ever inspects. It is
// deliberately thin, a same-origin session cookie signed with a single
// server-held HMAC key, not a third-party-issued credential.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sesphr/srsbroker/internal/phr/identity"
)

// CookieName is the name of the signed session cookie.
const CookieName = "phr_session"

// ErrNoSession is returned when a request carries no valid session cookie.
var ErrNoSession = errors.New("session: no valid session")

// Caller is the identity SessionGate hands to the broker and OwnerOps:
// just the (caller id, caller role) pair, and nothing more.
type Caller struct {
	UserID string
	Role   string
}

// claims is the JWT payload for a session cookie. Role travels in the
// token so that authorization never needs a database round trip merely to
// establish who is asking. The broker derives the attribute bag's Role
// attribute from this claim, so the token's signature is what keeps a
// caller from choosing their own Role value.
type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Gate issues and verifies session cookies and authenticates callers
// against the identity store.
type Gate struct {
	identity     *identity.Store
	signingKey   []byte
	ttl          time.Duration
	secureCookie bool
}

// New constructs a Gate. signingKey must be non-empty; it is the sole
// secret guarding every issued session cookie. secureCookie should be true
// whenever the server is reached over TLS.
func New(identityStore *identity.Store, signingKey []byte, ttl time.Duration, secureCookie bool) (*Gate, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("session: signing key is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Gate{identity: identityStore, signingKey: signingKey, ttl: ttl, secureCookie: secureCookie}, nil
}

// Login authenticates email/password against the identity store and, on
// success, sets a signed session cookie on w.
func (g *Gate) Login(ctx context.Context, w http.ResponseWriter, email, password string) (*identity.User, error) {
	user, err := g.identity.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := g.setCookie(w, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Logout clears the session cookie. It does not invalidate the token
// server-side (there is no session store to invalidate against); a
// cleared cookie simply stops the browser from presenting it again.
func (g *Gate) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// Authenticate extracts and verifies the session cookie on r, returning
// the Caller it names. It is the only place in the system that trusts a
// role claim without re-deriving it from the identity store; the broker
// never relies on Caller.Role alone, it re-derives the attribute bag via
// AttributeStore.EffectiveBag using this same role value.
func (g *Gate) Authenticate(r *http.Request) (Caller, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return Caller{}, ErrNoSession
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("session: unexpected signing method %v", t.Header["alg"])
		}
		return g.signingKey, nil
	})
	if err != nil || !token.Valid {
		return Caller{}, ErrNoSession
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.Subject == "" {
		return Caller{}, ErrNoSession
	}
	return Caller{UserID: c.Subject, Role: c.Role}, nil
}

func (g *Gate) setCookie(w http.ResponseWriter, user *identity.User) error {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
		},
		Role: user.Role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(g.signingKey)
	if err != nil {
		return fmt.Errorf("session: signing cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
