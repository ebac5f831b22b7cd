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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"local":  local,
		"memory": NewMemoryStore(),
	}
}

func TestStore_PutGetByteIdentical(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte{0x00, 0x01, 0xff, 0xfe, 0x10}
			require.NoError(t, store.Put(ctx, "obj-1", payload))

			got, err := store.Get(ctx, "obj-1")
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestStore_GetMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "does-not-exist")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteMissingReturnsErrNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Delete(ctx, "does-not-exist")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ExistsTracksPutAndDelete(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := store.Exists(ctx, "obj-2")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.Put(ctx, "obj-2", []byte("x")))
			ok, err = store.Exists(ctx, "obj-2")
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, store.Delete(ctx, "obj-2"))
			ok, err = store.Exists(ctx, "obj-2")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStore_PutOverwritesExistingKey(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "obj-3", []byte("version-1")))
			require.NoError(t, store.Put(ctx, "obj-3", []byte("version-2")))

			got, err := store.Get(ctx, "obj-3")
			require.NoError(t, err)
			assert.Equal(t, []byte("version-2"), got)
		})
	}
}

func TestStore_Ping(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, store.Ping(ctx))
		})
	}
}

func TestLocalStore_KeyCannotEscapeRoot(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	err = store.Put(ctx, "../../etc/passwd", []byte("x"))
	require.NoError(t, err) // securejoin contains the path within the root; it never errors on traversal attempts

	ok, err := store.Exists(ctx, "etc/passwd")
	require.NoError(t, err)
	assert.True(t, ok, "the traversal key is written inside the root")
}

func TestNew_UnknownBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "nope"})
	require.Error(t, err)
}

func TestNew_Local(t *testing.T) {
	store, err := New(context.Background(), Config{Backend: BackendLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestNew_Memory(t *testing.T) {
	store, err := New(context.Background(), Config{Backend: BackendMemory})
	require.NoError(t, err)
	assert.NotNil(t, store)
}
