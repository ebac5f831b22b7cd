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

	"github.com/sesphr/srsbroker/internal/phr/audit"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// setAttributeRequest is the JSON body for POST /admin/attributes. Explicit
// attributes may only be mutated by an admin. Action is "add" (the default
// when omitted) or "remove"; value is required only for "add".
type setAttributeRequest struct {
	UserID string `json:"user_id"`
	Key    string `json:"key"`
	Value  string `json:"value,omitempty"`
	Action string `json:"action,omitempty"`
}

// handleSetAttribute is the admin-only attribute bag mutation endpoint.
// Every successful mutation is audited, ATTR_SET for adds and ATTR_REMOVE
// for removals.
func (s *Server) handleSetAttribute(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req setAttributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Key == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "user_id and key are required"))
		return
	}

	switch req.Action {
	case "", "add":
		if req.Value == "" {
			writeError(w, phrerr.New(phrerr.KindBadRequest, "value is required to add an attribute"))
			return
		}
		if err := s.attrs.Set(r.Context(), req.UserID, req.Key, req.Value); err != nil {
			writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "setting attribute", err))
			return
		}
		if _, err := s.auditLog.InstrumentedAppend(r.Context(), caller.UserID, req.UserID, audit.ActionAttrSet, audit.StatusSuccess); err != nil {
			writeError(w, phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording attribute mutation", err))
			return
		}

	case "remove":
		if err := s.attrs.Delete(r.Context(), req.UserID, req.Key); err != nil {
			writeError(w, phrerr.Wrap(phrerr.KindSetupError, "removing attribute", err))
			return
		}
		if _, err := s.auditLog.InstrumentedAppend(r.Context(), caller.UserID, req.UserID, audit.ActionAttrRemove, audit.StatusSuccess); err != nil {
			writeError(w, phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording attribute mutation", err))
			return
		}

	default:
		writeError(w, phrerr.New(phrerr.KindBadRequest, "action must be add or remove"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
