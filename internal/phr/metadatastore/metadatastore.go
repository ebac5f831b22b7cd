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

// Package metadatastore persists the per-object record (owner, policy,
// wrapped key, nonce, revocation set) that OwnerOps and the KeyBroker
// read and mutate. Revocation is a read-modify-write that must be
// serialized per object; this package uses SELECT ... FOR UPDATE row
// locks to guarantee that.
package metadatastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ModeBroker is the only object storage mode this implementation writes;
// the "mode" column exists for wire compatibility with a legacy in-band
// format that is never produced by this core.
const ModeBroker = "client_side_encryption"

// ErrNotFound is returned when an object record does not exist.
var ErrNotFound = errors.New("metadatastore: object not found")

// Record is one stored object's metadata.
type Record struct {
	Name       string
	OwnerID    string
	Policy     string
	WrappedKey []byte
	Nonce      []byte
	RevokedIDs []string
	Mode       string
}

// Store persists Records in Postgres.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// New creates a Store that owns pool and will close it on Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: true}
}

// NewFromPool wraps an existing pool; Close is then a no-op.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: false}
}

// Create inserts a new object record. name must not already exist.
func (s *Store) Create(ctx context.Context, r Record) error {
	const q = `
		INSERT INTO object_records (name, owner_id, policy, wrapped_key, nonce, revoked_ids, mode)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if r.Mode == "" {
		r.Mode = ModeBroker
	}
	if r.RevokedIDs == nil {
		r.RevokedIDs = []string{}
	}

	_, err := s.pool.Exec(ctx, q, r.Name, r.OwnerID, r.Policy, r.WrappedKey, r.Nonce, r.RevokedIDs, r.Mode)
	if err != nil {
		return fmt.Errorf("metadatastore: create %s: %w", r.Name, err)
	}
	return nil
}

// Get loads the record for name.
func (s *Store) Get(ctx context.Context, name string) (*Record, error) {
	const q = `
		SELECT name, owner_id, policy, wrapped_key, nonce, revoked_ids, mode
		FROM object_records WHERE name = $1`

	return scanRecord(s.pool.QueryRow(ctx, q, name))
}

// AddRevokedID adds targetID to name's revoked set, idempotently, under a
// row lock so concurrent revokes on the same object never race.
func (s *Store) AddRevokedID(ctx context.Context, name, targetID string) error {
	return s.withRowLock(ctx, name, func(tx pgx.Tx, rec *Record) error {
		for _, id := range rec.RevokedIDs {
			if id == targetID {
				return nil // already revoked, idempotent no-op
			}
		}
		rec.RevokedIDs = append(rec.RevokedIDs, targetID)
		const q = `UPDATE object_records SET revoked_ids = $2 WHERE name = $1`
		_, err := tx.Exec(ctx, q, name, rec.RevokedIDs)
		return err
	})
}

// Blanket sets name's policy to the reserved revocation sentinel under a
// row lock, atomically with respect to any concurrent revoke on the same
// object.
func (s *Store) Blanket(ctx context.Context, name, sentinelPolicy string) error {
	return s.withRowLock(ctx, name, func(tx pgx.Tx, rec *Record) error {
		const q = `UPDATE object_records SET policy = $2 WHERE name = $1`
		_, err := tx.Exec(ctx, q, name, sentinelPolicy)
		return err
	})
}

func (s *Store) withRowLock(ctx context.Context, name string, mutate func(tx pgx.Tx, rec *Record) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("metadatastore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
		SELECT name, owner_id, policy, wrapped_key, nonce, revoked_ids, mode
		FROM object_records WHERE name = $1 FOR UPDATE`

	rec, err := scanRecord(tx.QueryRow(ctx, q, name))
	if err != nil {
		return err
	}

	if err := mutate(tx, rec); err != nil {
		return fmt.Errorf("metadatastore: mutate %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("metadatastore: commit %s: %w", name, err)
	}
	return nil
}

// ListOwned returns every record owned by ownerID. Non-authoritative: the
// broker never consults it.
func (s *Store) ListOwned(ctx context.Context, ownerID string) ([]*Record, error) {
	const q = `
		SELECT name, owner_id, policy, wrapped_key, nonce, revoked_ids, mode
		FROM object_records WHERE owner_id = $1 ORDER BY name`
	return s.queryRecords(ctx, q, ownerID)
}

// ListAccessible returns every record not owned by excludingOwnerID, for
// display purposes only. It does not look at the policy at all; deciding
// access is the broker's job at access time, never a listing convenience. Callers filter further using policy.Evaluate if they
// want an accurate "can I read this" answer; this query exists to bound the
// candidate set cheaply.
func (s *Store) ListAccessible(ctx context.Context, excludingOwnerID string) ([]*Record, error) {
	const q = `
		SELECT name, owner_id, policy, wrapped_key, nonce, revoked_ids, mode
		FROM object_records WHERE owner_id != $1 ORDER BY name`
	return s.queryRecords(ctx, q, excludingOwnerID)
}

func (s *Store) queryRecords(ctx context.Context, q, arg string) ([]*Record, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("metadatastore: query: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.OwnerID, &r.Policy, &r.WrappedKey, &r.Nonce, &r.RevokedIDs, &r.Mode); err != nil {
			return nil, fmt.Errorf("metadatastore: scan: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("metadatastore: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var r Record
	err := row.Scan(&r.Name, &r.OwnerID, &r.Policy, &r.WrappedKey, &r.Nonce, &r.RevokedIDs, &r.Mode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("metadatastore: scan: %w", err)
	}
	return &r, nil
}

// Close releases the underlying pool if this Store owns it.
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
