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

	"github.com/sesphr/srsbroker/internal/phr/metadatastore"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// objectSummary is the wire shape for a listed object record. It omits
// wrapped_key and nonce: listing is a UI convenience, never a vehicle for
// handing out key material.
type objectSummary struct {
	Name       string   `json:"name"`
	OwnerID    string   `json:"owner_id"`
	Policy     string   `json:"policy"`
	RevokedIDs []string `json:"revoked_ids"`
}

func toSummaries(records []*metadatastore.Record) []objectSummary {
	out := make([]objectSummary, 0, len(records))
	for _, r := range records {
		out = append(out, objectSummary{Name: r.Name, OwnerID: r.OwnerID, Policy: r.Policy, RevokedIDs: r.RevokedIDs})
	}
	return out
}

// handleObjectsMine lists every object the caller owns.
func (s *Server) handleObjectsMine(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	records, err := s.owner.ListOwned(r.Context(), caller.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaries(records))
}

// handleObjectsShared lists objects not owned by the caller whose policy
// the caller's current attribute bag plausibly satisfies. This is a
// non-authoritative convenience read: only the KeyBroker's S1/S2 checks are
// an authorization decision, and a listed object can go stale the instant a
// concurrent revoke lands.
func (s *Server) handleObjectsShared(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	bag, err := s.attrs.EffectiveBag(r.Context(), caller.UserID, caller.Role)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "loading attribute bag", err))
		return
	}

	records, err := s.owner.ListAccessible(r.Context(), caller.UserID, bag)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaries(records))
}
