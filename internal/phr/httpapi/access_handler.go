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
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/sesphr/srsbroker/internal/phr/broker"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// accessRequest is the JSON body for POST /access.
type accessRequest struct {
	ObjectName string `json:"object_name"`
}

// accessResponse is the JSON body returned for a granted access.
type accessResponse struct {
	Status     string `json:"status"`
	WrappedKey string `json:"wrapped_key"`
	IV         string `json:"iv"`
	BlobRef    string `json:"blob_ref"`
}

// handleAccess runs the KeyBroker's S0-S5 state machine for the
// authenticated caller against the requested object. Every outcome the
// broker produces, granted or denied, is already audited by Broker.Rewrap
// before this handler ever sees it.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ObjectName == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "object_name is required"))
		return
	}

	result, err := s.broker.Rewrap(r.Context(), broker.Caller{UserID: caller.UserID, Role: caller.Role}, req.ObjectName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accessResponse{
		Status:     "granted",
		WrappedKey: hex.EncodeToString(result.WrappedKeyForCaller),
		IV:         hex.EncodeToString(result.Nonce),
		BlobRef:    result.BlobRef,
	})
}
