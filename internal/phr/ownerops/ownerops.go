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

// Package ownerops implements the owner-only mutations on an object
// record: upload (create) and revoke (granular or blanket), plus the
// non-authoritative listing reads a UI uses to show a user their own and
// shared objects. Nothing here decides access: ListAccessible evaluates
// policies only to filter a display list, and the access decision is the
// KeyBroker's job alone, every time, even for an object this package just
// listed.
package ownerops

import (
	"context"

	"github.com/sesphr/srsbroker/internal/phr/audit"
	"github.com/sesphr/srsbroker/internal/phr/blobstore"
	"github.com/sesphr/srsbroker/internal/phr/metadatastore"
	"github.com/sesphr/srsbroker/internal/phr/phrerr"
	"github.com/sesphr/srsbroker/internal/phr/policy"
)

// UploadRequest is the input to Upload: a fresh object, its access policy,
// and its wrapped content key, sealed by the caller to the SRS public key
// before it ever reaches this package.
type UploadRequest struct {
	OwnerID    string
	Name       string
	Policy     string
	WrappedKey []byte
	Nonce      []byte
	Blob       []byte
}

// MetadataStore is the subset of metadatastore.Store OwnerOps needs.
type MetadataStore interface {
	Create(ctx context.Context, r metadatastore.Record) error
	Get(ctx context.Context, name string) (*metadatastore.Record, error)
	AddRevokedID(ctx context.Context, name, targetID string) error
	Blanket(ctx context.Context, name, sentinelPolicy string) error
	ListOwned(ctx context.Context, ownerID string) ([]*metadatastore.Record, error)
	ListAccessible(ctx context.Context, excludingOwnerID string) ([]*metadatastore.Record, error)
}

// OwnerOps mutates object records on behalf of their owner. It never
// unwraps a content key, and it evaluates a policy predicate only to filter
// ListAccessible's display list; it only ever persists what the owner
// already prepared client-side.
type OwnerOps struct {
	metadata MetadataStore
	blobs    blobstore.Store
	auditLog *audit.Log
}

// New constructs an OwnerOps over its metadata store, blob store, and the
// audit log every mutation is recorded to.
func New(metadata MetadataStore, blobs blobstore.Store, auditLog *audit.Log) *OwnerOps {
	return &OwnerOps{metadata: metadata, blobs: blobs, auditLog: auditLog}
}

// Upload creates a new object record and persists its blob byte-identical.
// The blob is written first: a metadata record pointing at a blob that
// failed to land would be worse than a stray orphaned blob with no record
// naming it.
func (o *OwnerOps) Upload(ctx context.Context, req UploadRequest) error {
	if req.Name == "" || req.OwnerID == "" {
		return phrerr.New(phrerr.KindBadRequest, "name and owner_id are required")
	}
	if _, err := policy.Parse(req.Policy); err != nil {
		return phrerr.Wrap(phrerr.KindBadRequest, "malformed policy", err)
	}

	if err := o.blobs.Put(ctx, req.Name, req.Blob); err != nil {
		return phrerr.Wrap(phrerr.KindSetupError, "storing blob", err)
	}

	record := metadatastore.Record{
		Name:       req.Name,
		OwnerID:    req.OwnerID,
		Policy:     req.Policy,
		WrappedKey: req.WrappedKey,
		Nonce:      req.Nonce,
		Mode:       metadatastore.ModeBroker,
	}
	if err := o.metadata.Create(ctx, record); err != nil {
		return phrerr.Wrap(phrerr.KindSetupError, "creating object record", err)
	}

	if _, err := o.auditLog.InstrumentedAppend(ctx, req.OwnerID, req.Name, audit.ActionUpload, audit.StatusSuccess); err != nil {
		return phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording upload", err)
	}
	return nil
}

// Revoke denies future access to an object, granular if targetID is
// non-empty (adds targetID to the revoked set, idempotently) or blanket
// otherwise (rewrites the policy to the reserved sentinel, denying every
// caller regardless of attribute bag). callerID must own the object;
// Revoke enforces that before mutating anything.
func (o *OwnerOps) Revoke(ctx context.Context, callerID, name, targetID string) error {
	record, err := o.metadata.Get(ctx, name)
	if err != nil {
		if err == metadatastore.ErrNotFound {
			return phrerr.New(phrerr.KindNotFound, "object not found")
		}
		return phrerr.Wrap(phrerr.KindSetupError, "loading object record", err)
	}
	if record.OwnerID != callerID {
		cause := phrerr.New(phrerr.KindNotOwner, "caller does not own this object")
		if _, err := o.auditLog.InstrumentedAppend(ctx, callerID, name, audit.ActionRevoke, audit.StatusDeniedOwner); err != nil {
			return phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording ownership denial", err)
		}
		return cause
	}

	if targetID != "" {
		if err := o.metadata.AddRevokedID(ctx, name, targetID); err != nil {
			return phrerr.Wrap(phrerr.KindSetupError, "adding revoked id", err)
		}
		if _, err := o.auditLog.InstrumentedAppend(ctx, callerID, name, audit.ActionRevokeUser, audit.StatusSuccess); err != nil {
			return phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording granular revoke", err)
		}
		return nil
	}

	if err := o.metadata.Blanket(ctx, name, policy.RevokedPolicy); err != nil {
		return phrerr.Wrap(phrerr.KindSetupError, "applying blanket revocation", err)
	}
	if _, err := o.auditLog.InstrumentedAppend(ctx, callerID, name, audit.ActionRevoke, audit.StatusSuccess); err != nil {
		return phrerr.Wrap(phrerr.KindAuditWriteFailed, "recording blanket revoke", err)
	}
	return nil
}

// ListOwned returns every object callerID owns. Non-authoritative: never
// consulted by the broker.
func (o *OwnerOps) ListOwned(ctx context.Context, callerID string) ([]*metadatastore.Record, error) {
	records, err := o.metadata.ListOwned(ctx, callerID)
	if err != nil {
		return nil, phrerr.Wrap(phrerr.KindSetupError, "listing owned objects", err)
	}
	return records, nil
}

// ListAccessible returns every object not owned by callerID whose policy
// is plausibly satisfied by attrs, as a UI convenience only. It is not an
// authorization decision: a listed object must still pass the KeyBroker's
// S1/S2 checks on actual access, since this list can go stale the instant
// a concurrent revoke or policy change lands.
func (o *OwnerOps) ListAccessible(ctx context.Context, callerID string, attrs map[string]string) ([]*metadatastore.Record, error) {
	candidates, err := o.metadata.ListAccessible(ctx, callerID)
	if err != nil {
		return nil, phrerr.Wrap(phrerr.KindSetupError, "listing accessible objects", err)
	}

	out := make([]*metadatastore.Record, 0, len(candidates))
	for _, record := range candidates {
		if policy.Evaluate(record.Policy, attrs) {
			out = append(out, record)
		}
	}
	return out, nil
}
