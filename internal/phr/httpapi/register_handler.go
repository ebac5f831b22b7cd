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

// registerRequest is the JSON body for POST /auth/register.
type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// registerResponse carries the new account plus its freshly minted key
// pair. The private half is returned here, once, to the registering
// client and is never retrievable again: broker operations only ever
// consult the public half.
type registerResponse struct {
	User          userResponse `json:"user"`
	PrivateKeyPEM string       `json:"private_key_pem"`
	PublicKeyPEM  string       `json:"public_key_pem"`
}

// handleRegister creates a new account and mints its key pair in one
// bootstrap step. Admin accounts cannot self-register; they are
// provisioned out of band.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "email and password are required"))
		return
	}
	if req.Role != identity.RoleOwner && req.Role != identity.RoleReader {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "role must be owner or reader"))
		return
	}

	user, err := s.identity.Create(r.Context(), req.Email, req.DisplayName, req.Password, req.Role)
	if err != nil {
		if err == identity.ErrEmailTaken {
			writeError(w, phrerr.New(phrerr.KindBadRequest, "email already registered"))
			return
		}
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "creating user", err))
		return
	}

	privPEM, pubPEM, err := s.keys.GenerateUserKeys(r.Context(), user.ID)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "generating user key pair", err))
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:          toUserResponse(user),
		PrivateKeyPEM: string(privPEM),
		PublicKeyPEM:  string(pubPEM),
	})
}
