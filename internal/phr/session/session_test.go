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

package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_New_RequiresSigningKey(t *testing.T) {
	_, err := New(nil, nil, time.Hour, false)
	assert.Error(t, err)
}

func TestGate_Authenticate_NoCookie(t *testing.T) {
	g, err := New(nil, []byte("secret"), time.Hour, false)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = g.Authenticate(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGate_Authenticate_RoundTrip(t *testing.T) {
	g, err := New(nil, []byte("secret"), time.Hour, false)
	require.NoError(t, err)

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: "reader",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(g.signingKey)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: signed})

	caller, err := g.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: "user-1", Role: "reader"}, caller)
}

func TestGate_Authenticate_WrongSigningKey(t *testing.T) {
	g, err := New(nil, []byte("secret"), time.Hour, false)
	require.NoError(t, err)

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
		Role: "reader",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte("a-different-secret"))
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: signed})

	_, err = g.Authenticate(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGate_Authenticate_Expired(t *testing.T) {
	g, err := New(nil, []byte("secret"), time.Hour, false)
	require.NoError(t, err)

	past := time.Now().Add(-time.Hour)
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(past),
		},
		Role: "reader",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(g.signingKey)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieName, Value: signed})

	_, err = g.Authenticate(r)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestGate_Logout_ClearsCookie(t *testing.T) {
	g, err := New(nil, []byte("secret"), time.Hour, false)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	g.Logout(w)

	resp := w.Result()
	defer func() { _ = resp.Body.Close() }()
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, CookieName, resp.Cookies()[0].Name)
	assert.Less(t, resp.Cookies()[0].MaxAge, 0)
}
