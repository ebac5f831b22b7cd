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

// Package httpapi implements the PHR repository's HTTP surface (access,
// upload, revoke, session login/logout, admin attribute mutation, listing
// reads, audit verification) over net/http.ServeMux method-pattern routes,
// the same router style internal/session/api.Handler uses. Every handler
// here is boundary glue: it authenticates via SessionGate, decodes the
// request, calls into the broker/OwnerOps/identity/attrstore core, and
// maps the result (or *phrerr.Error) onto an HTTP status code.
package httpapi

import (
	"net/http"

	"github.com/go-logr/logr"

	"github.com/sesphr/srsbroker/internal/phr/attrstore"
	"github.com/sesphr/srsbroker/internal/phr/audit"
	"github.com/sesphr/srsbroker/internal/phr/blobstore"
	"github.com/sesphr/srsbroker/internal/phr/broker"
	"github.com/sesphr/srsbroker/internal/phr/identity"
	"github.com/sesphr/srsbroker/internal/phr/keystore"
	"github.com/sesphr/srsbroker/internal/phr/ownerops"
	"github.com/sesphr/srsbroker/internal/phr/session"
)

// Server wires the PHR core components to the HTTP surface. It holds no
// business logic of its own: every handler's job is to translate an HTTP
// request into a call on one of these collaborators and translate the
// result back.
type Server struct {
	broker   *broker.Broker
	owner    *ownerops.OwnerOps
	gate     *session.Gate
	identity *identity.Store
	attrs    *attrstore.Store
	keys     keystore.KeyStore
	auditLog *audit.Log
	blobs    blobstore.Store
	log      logr.Logger
}

// New constructs a Server over its collaborators.
func New(
	b *broker.Broker,
	owner *ownerops.OwnerOps,
	gate *session.Gate,
	identityStore *identity.Store,
	attrs *attrstore.Store,
	keys keystore.KeyStore,
	auditLog *audit.Log,
	blobs blobstore.Store,
	log logr.Logger,
) *Server {
	return &Server{
		broker:   b,
		owner:    owner,
		gate:     gate,
		identity: identityStore,
		attrs:    attrs,
		keys:     keys,
		auditLog: auditLog,
		blobs:    blobs,
		log:      log.WithName("phr-api"),
	}
}

// Handler returns the fully wired, metrics-instrumented HTTP handler.
func (s *Server) Handler(metrics *HTTPMetrics) http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return RequestLogMiddleware(s.log, MetricsMiddleware(metrics, mux))
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	// Core surface.
	mux.HandleFunc("POST /access", s.handleAccess)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /revoke", s.handleRevoke)
	mux.HandleFunc("GET /srs/public-key", s.handleSRSPublicKey)
	mux.HandleFunc("GET /blobs/{name}", s.handleBlobDownload)

	// Session glue.
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /auth/whoami", s.handleWhoami)

	// Admin attribute mutation.
	mux.HandleFunc("POST /admin/attributes", s.handleSetAttribute)

	// Non-authoritative listing reads.
	mux.HandleFunc("GET /objects/mine", s.handleObjectsMine)
	mux.HandleFunc("GET /objects/shared", s.handleObjectsShared)

	// Audit chain integrity.
	mux.HandleFunc("GET /audit/verify", s.handleAuditVerify)
}
