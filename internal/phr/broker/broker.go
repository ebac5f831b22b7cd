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

// Package broker implements the Semi-trusted Re-encryption Server: the
// honest-but-curious proxy that unwraps an object's content key with its
// own private key and re-wraps it for an authorized requester's public
// key, without ever touching the content the key protects. The broker only
// ever handles the small wrapped key, never the blob it guards, and
// decides whether to act at all through the policy/revocation gate below.
package broker

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/sesphr/srsbroker/internal/phr/audit"
	"github.com/sesphr/srsbroker/internal/phr/keystore"
	"github.com/sesphr/srsbroker/internal/phr/metadatastore"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
	"github.com/sesphr/srsbroker/internal/phr/policy"
)

// Caller describes the identity requesting access, as established by the
// session layer before the broker is ever invoked.
type Caller struct {
	UserID string
	Role   string
}

// RewrapResult is what S5 EMIT returns to the caller: the object's content
// key, re-wrapped under the caller's own public key, plus enough to fetch
// the blob it protects.
type RewrapResult struct {
	WrappedKeyForCaller []byte
	Nonce               []byte
	BlobRef             string
}

// MetadataStore is the subset of metadatastore.Store the broker needs for
// S0 LOOKUP: read-only, a single object by name.
type MetadataStore interface {
	Get(ctx context.Context, name string) (*metadatastore.Record, error)
}

// AttributeStore is the subset of attrstore.Store the broker needs for S1
// POLICY: the caller's effective attribute bag.
type AttributeStore interface {
	EffectiveBag(ctx context.Context, userID, role string) (map[string]string, error)
}

// Broker runs the S0-S5 access decision: LOOKUP, POLICY, REVOCATION,
// UNWRAP, REWRAP, EMIT. It never reads or writes blob content; it only
// ever handles the wrapped content key.
type Broker struct {
	metadata MetadataStore
	attrs    AttributeStore
	keys     keystore.KeyStore
	auditLog *audit.Log
}

// New constructs a Broker over its three persistence dependencies and the
// audit log every decision is recorded to.
func New(metadata MetadataStore, attrs AttributeStore, keys keystore.KeyStore, auditLog *audit.Log) *Broker {
	return &Broker{metadata: metadata, attrs: attrs, keys: keys, auditLog: auditLog}
}

// Rewrap runs the full S0-S5 state machine for caller requesting access to
// the object named name. Every terminal outcome, granted or denied, is
// audited before Rewrap returns; the returned error, if any, is always a
// *phrerr.Error carrying the taxonomy kind the caller and the HTTP layer
// need.
func (b *Broker) Rewrap(ctx context.Context, caller Caller, name string) (*RewrapResult, error) {
	// S0 LOOKUP
	obj, err := b.metadata.Get(ctx, name)
	if err != nil {
		if err == metadatastore.ErrNotFound {
			return nil, b.deny(ctx, caller.UserID, name, phrerr.New(phrerr.KindNotFound, "object not found"))
		}
		return nil, b.fail(phrerr.KindSetupError, "loading object record", err)
	}

	// S1 POLICY
	bag, err := b.attrs.EffectiveBag(ctx, caller.UserID, caller.Role)
	if err != nil {
		return nil, b.fail(phrerr.KindSetupError, "loading attribute bag", err)
	}
	if !policy.Evaluate(obj.Policy, bag) {
		return nil, b.deny(ctx, caller.UserID, name, phrerr.New(phrerr.KindPolicyDenied, "policy not satisfied"))
	}

	// S2 REVOCATION
	for _, revokedID := range obj.RevokedIDs {
		if revokedID == caller.UserID {
			return nil, b.deny(ctx, caller.UserID, name, phrerr.New(phrerr.KindRevoked, "caller revoked for this object"))
		}
	}

	// S3 UNWRAP
	srsPriv, _, err := b.keys.GetOrCreateSRS(ctx)
	if err != nil {
		return nil, b.fail(phrerr.KindSetupError, "loading SRS key pair", err)
	}
	srsKey, err := keystore.ParsePrivateKey(srsPriv)
	if err != nil {
		return nil, b.fail(phrerr.KindIntegrityError, "parsing SRS private key", err)
	}
	contentKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, srsKey, obj.WrappedKey, nil)
	if err != nil {
		return nil, b.fail(phrerr.KindIntegrityError, "unwrapping content key", err)
	}
	// The unwrapped key must not outlive this call: clear the buffer on
	// every exit path, including after S5, so it never lingers.
	defer func() {
		for i := range contentKey {
			contentKey[i] = 0
		}
	}()

	// S4 REWRAP
	callerPub, ok, err := b.keys.GetUserPublicKey(ctx, caller.UserID)
	if err != nil {
		return nil, b.fail(phrerr.KindSetupError, "loading caller public key", err)
	}
	if !ok {
		return nil, b.fail(phrerr.KindSetupError, "caller has no registered public key", nil)
	}
	callerKey, err := keystore.ParsePublicKey(callerPub)
	if err != nil {
		return nil, b.fail(phrerr.KindSetupError, "parsing caller public key", err)
	}
	rewrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, callerKey, contentKey, nil)
	if err != nil {
		return nil, b.fail(phrerr.KindIntegrityError, "rewrapping content key", err)
	}

	// S5 EMIT
	if _, err := b.auditLog.InstrumentedAppend(ctx, caller.UserID, name, audit.ActionAccess, audit.StatusGrantedRewrap); err != nil {
		return nil, phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording grant", err)
	}
	decisionsTotal.WithLabelValues(audit.StatusGrantedRewrap).Inc()

	return &RewrapResult{
		WrappedKeyForCaller: rewrapped,
		Nonce:               obj.Nonce,
		BlobRef:             name,
	}, nil
}

// deny audits a policy/revocation/lookup denial under the taxonomy's audit
// status and returns the originating error unchanged, so a caller-visible
// denial and its audit trail are always produced together. It is never
// used for KindSetupError or KindIntegrityError: per the error taxonomy
// those surface as a 500 with no audit record, since they indicate a
// broken precondition (a missing key, corrupt metadata) rather than an
// access decision. If the audit write itself fails, that failure takes
// precedence: the system fails closed rather than return a denial (or,
// worse, a grant) that was never recorded.
func (b *Broker) deny(ctx context.Context, actorID, name string, cause *phrerr.Error) error {
	if _, err := b.auditLog.InstrumentedAppend(ctx, actorID, name, audit.ActionAccess, cause.AuditStatus()); err != nil {
		return phrerr.Wrap(phrerr.KindAuditWriteFailed, fmt.Sprintf("recording denial (%s)", cause.Kind), err)
	}
	decisionsTotal.WithLabelValues(cause.AuditStatus()).Inc()
	return cause
}

// fail counts and returns a setup/integrity abort: a request that never
// reached a decision and is therefore never audited.
func (b *Broker) fail(kind phrerr.Kind, msg string, err error) error {
	failuresTotal.WithLabelValues(string(kind)).Inc()
	if err != nil {
		return phrerr.Wrap(kind, msg, err)
	}
	return phrerr.New(kind, msg)
}
