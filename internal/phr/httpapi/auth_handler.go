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

package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/sesphr/srsbroker/internal/phr/identity"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func toUserResponse(u *identity.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}

// handleLogin authenticates email/password against the identity store and,
// on success, sets a signed session cookie. Unlike broker denials, a login
// failure is not distinguishable between "unknown email" and "wrong
// password" (identity.Store.Authenticate collapses both to ErrNotFound) so
// a caller cannot use this endpoint to enumerate registered emails.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "email and password are required"))
		return
	}

	user, err := s.gate.Login(r.Context(), w, req.Email, req.Password)
	if err != nil {
		writeError(w, phrerr.New(phrerr.KindUnauthenticated, "invalid credentials"))
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Logout(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	user, err := s.identity.GetByID(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "loading caller identity", err))
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
