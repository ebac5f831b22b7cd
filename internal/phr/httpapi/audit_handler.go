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

import "net/http"

// auditVerifyResponse mirrors audit.VerifyResult for the wire.
type auditVerifyResponse struct {
	OK            bool  `json:"ok"`
	RecordCount   int   `json:"record_count"`
	CorruptLines  int   `json:"corrupt_lines"`
	BrokenIndices []int `json:"broken_indices"`
}

// handleAuditVerify re-verifies the hash chain and reports every broken
// index, admin-only.
func (s *Server) handleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	result, err := s.auditLog.Verify()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, auditVerifyResponse{
		OK:            result.OK(),
		RecordCount:   result.RecordCount,
		CorruptLines:  result.CorruptLines,
		BrokenIndices: result.BrokenIndices,
	})
}
