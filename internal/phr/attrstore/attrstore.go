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

// Package attrstore persists the explicit attribute bag for each user and
// builds the effective view (explicit attributes union the derived Role
// attribute) that the PolicyEvaluator consumes. Role canonicalization to
// title case happens here, at view-build time, never at storage time.
package attrstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sesphr/srsbroker/internal/phr/policy"
)

// RoleAttributeKey is the reserved attribute key populated from the user's
// role. AttributeStore.Set does not reject it as a key, but EffectiveBag
// always overwrites any stored value under it with the derived role label.
const RoleAttributeKey = "Role"

// roleLabels maps the internal role vocabulary to the title-cased label
// exposed through the derived Role attribute, matching the vocabulary the
// original patient/doctor/admin portal used.
var roleLabels = map[string]string{
	"owner":  "Patient",
	"reader": "Doctor",
	"admin":  "Admin",
}

// ErrInvalidAttributeValue is returned when Set is called with the reserved
// revocation sentinel as a value; no real attribute may ever take it.
var ErrInvalidAttributeValue = errors.New("attrstore: value is reserved")

// Store persists explicit per-user attributes in Postgres.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// New creates a Store that owns pool and will close it on Close.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: true}
}

// NewFromPool wraps an existing pool. Close is then a no-op; the caller
// retains ownership.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, ownsPool: false}
}

// Set writes a single explicit attribute for userID. It rejects the
// reserved revocation sentinel as a value so that no legitimate bag can
// ever satisfy the blanket-revocation policy.
func (s *Store) Set(ctx context.Context, userID, key, value string) error {
	if value == policy.RevokedSentinelValue {
		return ErrInvalidAttributeValue
	}

	const q = `
		INSERT INTO user_attributes (user_id, key, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := s.pool.Exec(ctx, q, userID, key, value); err != nil {
		return fmt.Errorf("attrstore: set %s/%s: %w", userID, key, err)
	}
	return nil
}

// Delete removes a single explicit attribute for userID. It is not an
// error if the attribute was already absent.
func (s *Store) Delete(ctx context.Context, userID, key string) error {
	const q = `DELETE FROM user_attributes WHERE user_id = $1 AND key = $2`
	if _, err := s.pool.Exec(ctx, q, userID, key); err != nil {
		return fmt.Errorf("attrstore: delete %s/%s: %w", userID, key, err)
	}
	return nil
}

// Explicit returns the raw stored attribute bag for userID, with no Role
// attribute merged in.
func (s *Store) Explicit(ctx context.Context, userID string) (map[string]string, error) {
	const q = `SELECT key, value FROM user_attributes WHERE user_id = $1`

	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("attrstore: query %s: %w", userID, err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("attrstore: scan %s: %w", userID, err)
		}
		attrs[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attrstore: iterate %s: %w", userID, err)
	}
	return attrs, nil
}

// EffectiveBag returns userID's explicit attributes plus the derived Role
// attribute, title-cased from role. This is the view the PolicyEvaluator
// consumes; it is assembled fresh on every call and never persisted.
func (s *Store) EffectiveBag(ctx context.Context, userID, role string) (map[string]string, error) {
	attrs, err := s.Explicit(ctx, userID)
	if err != nil {
		return nil, err
	}
	attrs[RoleAttributeKey] = CanonicalRoleLabel(role)
	return attrs, nil
}

// CanonicalRoleLabel renders the internal role vocabulary (owner/reader/
// admin) as the title-cased label the policy grammar expects. Unknown
// roles pass through unchanged so a future role value never breaks
// evaluation silently.
func CanonicalRoleLabel(role string) string {
	if label, ok := roleLabels[role]; ok {
		return label
	}
	return role
}

// Close releases the underlying pool if this Store owns it.
func (s *Store) Close() error {
	if s.ownsPool {
		s.pool.Close()
	}
	return nil
}
