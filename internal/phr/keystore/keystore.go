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

// Package keystore persists the SRS key pair and per-user key pairs used by
// the broker's wrap/unwrap/re-wrap operations. It never generalizes beyond
// the one RSA key class the broker speaks: 2048-bit RSA-OAEP/SHA-256.
package keystore

import "context"

const (
	// RSAKeyBits is the modulus size for every key pair this package mints.
	RSAKeyBits = 2048

	// SRSKeyID is the fixed identifier under which the SRS key pair is
	// stored, distinct from any user id.
	SRSKeyID = "__srs__"
)

// KeyStore is the persistence boundary for the SRS key pair and per-user
// key pairs. Implementations must be safe for concurrent use.
type KeyStore interface {
	// GetOrCreateSRS returns the SRS key pair, generating and persisting it
	// on first call. Subsequent calls return the persisted pair unchanged.
	GetOrCreateSRS(ctx context.Context) (privatePEM, publicPEM []byte, err error)

	// GenerateUserKeys mints a fresh key pair for userID, persists both
	// halves, and returns them. Calling it again for the same userID
	// replaces the stored pair.
	GenerateUserKeys(ctx context.Context, userID string) (privatePEM, publicPEM []byte, err error)

	// GetUserPublicKey looks up userID's public key. ok is false if no key
	// has been generated for that user.
	GetUserPublicKey(ctx context.Context, userID string) (publicPEM []byte, ok bool, err error)

	// Close releases any resources held by the store.
	Close() error
}
