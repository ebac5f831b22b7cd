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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// FileKeyStore persists key pairs as PEM files under a root directory:
//
//	<root>/srs.priv.pem, <root>/srs.pub.pem
//	<root>/users/<user_id>.priv.pem, <root>/users/<user_id>.pub.pem
//
// A single mutex serializes generation so two concurrent first-callers of
// GetOrCreateSRS cannot both win the race and persist different key pairs.
type FileKeyStore struct {
	mu   sync.Mutex
	root string
}

// NewFileKeyStore creates a FileKeyStore rooted at dir, creating dir (and
// its users subdirectory) if needed.
func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if dir == "" {
		return nil, errors.New("keystore: root dir is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "users"), 0o750); err != nil {
		return nil, fmt.Errorf("keystore: creating root dir: %w", err)
	}
	return &FileKeyStore{root: dir}, nil
}

func (f *FileKeyStore) GetOrCreateSRS(_ context.Context) ([]byte, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	privPath, pubPath, err := f.srsPaths()
	if err != nil {
		return nil, nil, err
	}

	if priv, pub, ok := readPair(privPath, pubPath); ok {
		return priv, pub, nil
	}

	privPEM, pubPEM, err := generateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: generating SRS key pair: %w", err)
	}
	if err := writePair(privPath, pubPath, privPEM, pubPEM); err != nil {
		return nil, nil, err
	}
	return privPEM, pubPEM, nil
}

func (f *FileKeyStore) GenerateUserKeys(_ context.Context, userID string) ([]byte, []byte, error) {
	if userID == "" {
		return nil, nil, errors.New("keystore: user id is required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	privPath, pubPath, err := f.userPaths(userID)
	if err != nil {
		return nil, nil, err
	}

	privPEM, pubPEM, err := generateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: generating user key pair: %w", err)
	}
	if err := writePair(privPath, pubPath, privPEM, pubPEM); err != nil {
		return nil, nil, err
	}
	return privPEM, pubPEM, nil
}

func (f *FileKeyStore) GetUserPublicKey(_ context.Context, userID string) ([]byte, bool, error) {
	if userID == "" {
		return nil, false, errors.New("keystore: user id is required")
	}

	_, pubPath, err := f.userPaths(userID)
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

func (f *FileKeyStore) Close() error { return nil }

func (f *FileKeyStore) srsPaths() (string, string, error) {
	priv, err := securejoin.SecureJoin(f.root, "srs.priv.pem")
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving srs private path: %w", err)
	}
	pub, err := securejoin.SecureJoin(f.root, "srs.pub.pem")
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving srs public path: %w", err)
	}
	return priv, pub, nil
}

func (f *FileKeyStore) userPaths(userID string) (string, string, error) {
	priv, err := securejoin.SecureJoin(f.root, filepath.Join("users", userID+".priv.pem"))
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving user private path: %w", err)
	}
	pub, err := securejoin.SecureJoin(f.root, filepath.Join("users", userID+".pub.pem"))
	if err != nil {
		return "", "", fmt.Errorf("keystore: resolving user public path: %w", err)
	}
	return priv, pub, nil
}

func readPair(privPath, pubPath string) (priv, pub []byte, ok bool) {
	p, err := os.ReadFile(privPath)
	if err != nil {
		return nil, nil, false
	}
	q, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, nil, false
	}
	return p, q, true
}

func writePair(privPath, pubPath string, privPEM, pubPEM []byte) error {
	if err := os.MkdirAll(filepath.Dir(privPath), 0o750); err != nil {
		return fmt.Errorf("keystore: creating parent dir: %w", err)
	}
	if err := writeFileAtomic(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("keystore: writing private key: %w", err)
	}
	if err := writeFileAtomic(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("keystore: writing public key: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func generateKeyPair() (privPEM, pubPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("generating RSA key: %w", err)
	}

	privBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling private key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privBytes})

	pubBytes, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling public key: %w", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubBytes})

	return privPEM, pubPEM, nil
}

var _ KeyStore = (*FileKeyStore)(nil)
