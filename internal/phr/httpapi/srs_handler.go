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

	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// handleSRSPublicKey serves the SRS public key so clients can wrap content
// keys client-side before upload. It is read-only and requires no session:
// the SRS public key protects nothing by itself, only the broker's
// matching private key (held server-side) can ever unwrap what is sealed
// against it.
func (s *Server) handleSRSPublicKey(w http.ResponseWriter, r *http.Request) {
	_, publicPEM, err := s.keys.GetOrCreateSRS(r.Context())
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindSetupError, "loading SRS public key", err))
		return
	}
	w.Header().Set(headerContentType, "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(publicPEM)
}
