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
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/sesphr/srsbroker/internal/phr/ownerops"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
)

// maxUploadBytes bounds the in-memory portion of the multipart form;
// ParseMultipartForm spills anything larger to temp files.
const maxUploadBytes = 32 << 20

// handleUpload accepts a multipart form (`policy`, `key_blob`, `iv`, `file`)
// and creates a new object record. The caller has already wrapped the
// content key to the SRS public key client-side; this handler never sees,
// derives, or validates the key cryptographically. This handler only
// checks that key_blob and iv are hex, and OwnerOps.Upload only checks the
// policy grammar.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.authenticate(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "parsing multipart form", err))
		return
	}

	policyText := r.FormValue("policy")
	keyBlobHex := r.FormValue("key_blob")
	ivHex := r.FormValue("iv")

	wrappedKey, err := hex.DecodeString(keyBlobHex)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "key_blob is not valid hex", err))
		return
	}
	nonce, err := hex.DecodeString(ivHex)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "iv is not valid hex", err))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "file is required", err))
		return
	}
	defer func() { _ = file.Close() }()

	blob, err := io.ReadAll(file)
	if err != nil {
		writeError(w, phrerr.Wrap(phrerr.KindBadRequest, "reading uploaded file", err))
		return
	}

	name := uuid.NewString() + ".enc"
	if err := s.owner.Upload(r.Context(), ownerops.UploadRequest{
		OwnerID:    caller.UserID,
		Name:       name,
		Policy:     policyText,
		WrappedKey: wrappedKey,
		Nonce:      nonce,
		Blob:       blob,
	}); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		ObjectName string `json:"object_name"`
	}{ObjectName: name})
}
