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

// Package phrerr defines the error taxonomy shared by the broker, owner
// operations, and the HTTP layer, each tagged with the audit status and
// HTTP status code it maps to.
package phrerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a taxonomy bucket.
type Kind string

const (
	KindSetupError       Kind = "SETUP_ERROR"
	KindIntegrityError   Kind = "INTEGRITY_ERROR"
	KindPolicyDenied     Kind = "POLICY_DENIED"
	KindRevoked          Kind = "REVOKED"
	KindNotOwner         Kind = "NOT_OWNER"
	KindNotFound         Kind = "NOT_FOUND"
	KindBadRequest       Kind = "BAD_REQUEST"
	KindAuditWriteFailed Kind = "AUDIT_WRITE_FAILED"

	// KindUnauthenticated marks a request with no valid session cookie.
	// It is a SessionGate boundary concern, never reached by the broker
	// or OwnerOps state machines, and is never audited (there is no
	// caller id to attribute the attempt to).
	KindUnauthenticated Kind = "UNAUTHENTICATED"
	// KindDeniedRole marks a request an authenticated caller is
	// forbidden from making because of their role (e.g. a non-admin
	// calling the attribute-mutation endpoint), distinct from a policy
	// or revocation denial on a specific object.
	KindDeniedRole Kind = "DENIED_ROLE"
)

// httpStatus maps each Kind to the HTTP status the API layer returns.
var httpStatus = map[Kind]int{
	KindSetupError:       http.StatusInternalServerError,
	KindIntegrityError:   http.StatusInternalServerError,
	KindPolicyDenied:     http.StatusForbidden,
	KindRevoked:          http.StatusForbidden,
	KindNotOwner:         http.StatusForbidden,
	KindNotFound:         http.StatusNotFound,
	KindBadRequest:       http.StatusBadRequest,
	KindAuditWriteFailed: http.StatusInternalServerError,
	KindUnauthenticated:  http.StatusUnauthorized,
	KindDeniedRole:       http.StatusForbidden,
}

// auditStatus maps each Kind to the audit record status it is paired
// with. Every access decision lands on exactly one of these.
var auditStatus = map[Kind]string{
	KindSetupError:       "INVALID_REQUEST",
	KindIntegrityError:   "INVALID_REQUEST",
	KindPolicyDenied:     "DENIED_POLICY",
	KindRevoked:          "DENIED_REVOKED",
	KindNotOwner:         "DENIED_OWNER",
	KindNotFound:         "INVALID_REQUEST",
	KindBadRequest:       "INVALID_REQUEST",
	KindAuditWriteFailed: "INVALID_REQUEST",
	KindUnauthenticated:  "DENIED_AUTH",
	KindDeniedRole:       "DENIED_ROLE",
}

// Error is a taxonomy-tagged error.
type Error struct {
	Kind Kind
	Msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus returns the HTTP status code this error maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AuditStatus returns the audit record status this error maps to.
func (e *Error) AuditStatus() string {
	if s, ok := auditStatus[e.Kind]; ok {
		return s
	}
	return "INVALID_REQUEST"
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
