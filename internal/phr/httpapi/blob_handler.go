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

	"github.com/sesphr/srsbroker/internal/phr/blobstore"
	"github.com/sesphr/srsbroker/internal/phr/broker"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// handleBlobDownload serves the raw ciphertext for an object name. It
// never trusts the object name alone: every download first re-runs the
// KeyBroker's full S0-S5 decision, so a download produces exactly the same
// grant-or-deny audit entry an /access call would, and a revoked caller
// who somehow retained a blob_ref gets nothing. The rewrapped key
// accompanying the response is discarded here; the caller already holds
// one from a prior /access call, and this handler exists only to move
// bytes.
func (s *Server) handleBlobDownload(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	name := r.PathValue("name")
	if name == "" {
		writeError(w, phrerr.New(phrerr.KindBadRequest, "object name is required"))
		return
	}

	if _, err := s.broker.Rewrap(r.Context(), broker.Caller{UserID: caller.UserID, Role: caller.Role}, name); err != nil {
		writeError(w, err)
		return
	}

	data, err := s.blobs.Get(r.Context(), name)
	if err != nil {
		if err == blobstore.ErrNotFound {
			writeError(w, phrerr.New(phrerr.KindNotFound, "blob not found"))
			return
		}
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "reading blob", err))
		return
	}

	w.Header().Set(headerContentType, "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
