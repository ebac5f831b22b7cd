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
	"net/http"

	"github.com/sesphr/srsbroker/internal/httputil"
	"github.com/sesphr/srsbroker/internal/phr/identity"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
	"github.com/sesphr/srsbroker/internal/phr/session"
)

const headerContentType = httputil.HeaderContentType
const contentTypeJSON = httputil.ContentTypeJSON

// errorResponse is the JSON body for every non-2xx response.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	_ = httputil.WriteJSON(w, status, v)
}

// writeError maps err onto an HTTP status code. A *phrerr.Error carries its
// own mapping; anything else is a bug, not a taxonomy-classified outcome,
// and is surfaced as 500 without leaking its text to the caller.
func writeError(w http.ResponseWriter, err error) {
	if perr, ok := err.(*phrerr.Error); ok {
		writeJSON(w, perr.HTTPStatus(), errorResponse{Error: string(perr.Kind), Message: perr.Msg})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "INTERNAL", Message: "internal error"})
}

// authenticate resolves the caller's session cookie into a session.Caller,
// writing a 401 response and returning ok=false if no valid session is
// present. It never touches the broker or the audit log: an unauthenticated
// request never reaches the key-broker state machine at all.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (session.Caller, bool) {
	caller, err := s.gate.Authenticate(r)
	if err != nil {
		writeError(w, phrerr.New(phrerr.KindUnauthenticated, "missing or invalid session"))
		return session.Caller{}, false
	}
	return caller, true
}

// requireAdmin resolves the caller and additionally requires caller.Role
// == identity.RoleAdmin, writing a 403 response otherwise.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (session.Caller, bool) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return session.Caller{}, false
	}
	if caller.Role != identity.RoleAdmin {
		writeError(w, phrerr.New(phrerr.KindDeniedRole, "admin role required"))
		return session.Caller{}, false
	}
	return caller, true
}
