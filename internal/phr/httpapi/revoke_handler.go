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

	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// revokeRequest is the JSON body for POST /revoke. Granular if TargetID is
// present, blanket otherwise.
type revokeRequest struct {
	ObjectName string `json:"object_name"`
	TargetID   string `json:"target_id,omitempty"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectName == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "object_name is required"))
		return
	}

	if err := s.owner.Revoke(r.Context(), caller.UserID, req.ObjectName, req.TargetID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "revoked"})
}
