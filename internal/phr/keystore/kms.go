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

package keystore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Envelope wraps and unwraps arbitrary bytes, e.g. private key PEM material,
// with a KMS-managed key. It never sees the caller's object content keys.
type Envelope interface {
	Seal(ctx context.Context, plaintext []byte) (ciphertext []byte, err error)
	Open(ctx context.Context, ciphertext []byte) (plaintext []byte, err error)
	Close() error
}

// KMSWrappedKeyStore is a file-backed KeyStore whose private key PEM is
// envelope-encrypted at rest via env before it ever reaches disk. Public
// keys are not secrets and are stored as FileKeyStore stores them. Broker
// code talks to KMSWrappedKeyStore exactly as it would talk to
// FileKeyStore; wrapping is invisible above this layer.
type KMSWrappedKeyStore struct {
	mu   sync.Mutex
	root string
	env  Envelope
}

// NewKMSWrappedKeyStore creates a KMSWrappedKeyStore rooted at dir, sealing
// private key material with env.
func NewKMSWrappedKeyStore(dir string, env Envelope) (*KMSWrappedKeyStore, error) {
	if dir == "" {
		return nil, errors.New("keystore: root dir is required")
	}
	if env == nil {
		return nil, errors.New("keystore: envelope is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "users"), 0o750); err != nil {
		return nil, fmt.Errorf("keystore: creating root dir: %w", err)
	}
	return &KMSWrappedKeyStore{root: dir, env: env}, nil
}

func (k *KMSWrappedKeyStore) GetOrCreateSRS(ctx context.Context) ([]byte, []byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	privPath, pubPath, err := k.paths(SRSKeyID)
	if err != nil {
		return nil, nil, err
	}

	if sealedPriv, pub, ok := readPair(privPath, pubPath); ok {
		priv, err := k.env.Open(ctx, sealedPriv)
		if err != nil {
			return nil, nil, fmt.Errorf("keystore: unsealing SRS private key: %w", err)
		}
		return priv, pub, nil
	}

	return k.mint(ctx, privPath, pubPath)
}

func (k *KMSWrappedKeyStore) GenerateUserKeys(ctx context.Context, userID string) ([]byte, []byte, error) {
	if userID == "" {
		return nil, nil, errors.New("keystore: user id is required")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	privPath, pubPath, err := k.paths(userID)
	if err != nil {
		return nil, nil, err
	}
	return k.mint(ctx, privPath, pubPath)
}

func (k *KMSWrappedKeyStore) GetUserPublicKey(_ context.Context, userID string) ([]byte, bool, error) {
	if userID == "" {
		return nil, false, errors.New("keystore: user id is required")
	}

	_, pubPath, err := k.paths(userID)
	if err != nil {
		return nil, false, err
	}

	pub, err := os.ReadFile(pubPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("keystore: reading public key: %w", err)
	}
	return pub, true, nil
}

func (k *KMSWrappedKeyStore) Close() error { return k.env.Close() }

func (k *KMSWrappedKeyStore) mint(ctx context.Context, privPath, pubPath string) ([]byte, []byte, error) {
	privPEM, pubPEM, err := generateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: generating key pair: %w", err)
	}

	sealed, err := k.env.Seal(ctx, privPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: sealing private key: %w", err)
	}
	if err := writePair(privPath, pubPath, sealed, pubPEM); err != nil {
		return nil, nil, err
	}
	return privPEM, pubPEM, nil
}

func (k *KMSWrappedKeyStore) paths(id string) (string, string, error) {
	priv, err := securejoin.SecureJoin(k.root, filepath.Join("users", id+".priv.pem.sealed"))
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving private path: %w", err)
	}
	pub, err := securejoin.SecureJoin(k.root, filepath.Join("users", id+".pub.pem"))
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving public path: %w", err)
	}
	return priv, pub, nil
}

var _ KeyStore = (*KMSWrappedKeyStore)(nil)
