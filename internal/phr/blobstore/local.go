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

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cyphar/filepath-securejoin"
)

// LocalStore implements Store on the local filesystem, rooted at dir. Keys
// are logical names (e.g. "<object-name>.enc") and are joined to dir with
// filepath-securejoin so a crafted key can never escape the root.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a LocalStore rooted at dir, creating dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		return nil, errors.New("blobstore: local dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blobstore: creating root dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (l *LocalStore) resolve(key string) (string, error) {
	return securejoin.SecureJoin(l.dir, key)
}

func (l *LocalStore) Put(_ context.Context, key string, data []byte) error {
	path, err := l.resolve(key)
	if err != nil {
		return fmt.Errorf("blobstore: resolving key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("blobstore: creating parent dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("blobstore: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("blobstore: committing file: %w", err)
	}
	return nil
}

func (l *LocalStore) Get(_ context.Context, key string) ([]byte, error) {
	path, err := l.resolve(key)
	if err != nil {
		return nil, fmt.Errorf("blobstore: resolving key: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: reading file: %w", err)
	}
	return data, nil
}

func (l *LocalStore) Delete(_ context.Context, key string) error {
	path, err := l.resolve(key)
	if err != nil {
		return fmt.Errorf("blobstore: resolving key: %w", err)
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("blobstore: removing file: %w", err)
	}
	return nil
}

func (l *LocalStore) Exists(_ context.Context, key string) (bool, error) {
	path, err := l.resolve(key)
	if err != nil {
		return false, fmt.Errorf("blobstore: resolving key: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("blobstore: stat file: %w", err)
	}
	return true, nil
}

func (l *LocalStore) Ping(_ context.Context) error {
	if _, err := os.Stat(l.dir); err != nil {
		return fmt.Errorf("blobstore: root dir unavailable: %w", err)
	}
	return nil
}

func (l *LocalStore) Close() error { return nil }

var _ Store = (*LocalStore)(nil)
