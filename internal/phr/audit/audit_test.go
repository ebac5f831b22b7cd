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

package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppend_FirstRecordHasEmptyPrevHash(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	r, err := l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)
	assert.Empty(t, r.PrevHash)
	assert.NotEmpty(t, r.Hash)
}

func TestAppend_ChainsHashes(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	r1, err := l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)

	r2, err := l.Append(ctx, "user-2", "obj-1", ActionAccess, StatusDeniedPolicy)
	require.NoError(t, err)

	assert.Equal(t, r1.Hash, r2.PrevHash)
	assert.NotEqual(t, r1.Hash, r2.Hash)
}

func TestVerify_IntactChainOK(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
		require.NoError(t, err)
	}

	result, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 5, result.RecordCount)
	assert.Empty(t, result.BrokenIndices)
}

func TestVerify_DetectsTamperedRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, logr.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
		require.NoError(t, err)
	}
	require.NoError(t, l.Close())

	// Tamper with the third line's status in place, leaving its hash and
	// every other record's hash untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := []byte(replaceNth(string(data), "GRANTED_REWRAP", "DENIED_POLICY", 2))
	require.NoError(t, os.WriteFile(path, tampered, 0o640))

	l2, err := Open(path, logr.Discard())
	require.NoError(t, err)
	defer func() { _ = l2.Close() }()

	result, err := l2.Verify()
	require.NoError(t, err)
	assert.False(t, result.OK())
	// Every record from the tampered one onward is reported broken: once
	// the chain is contaminated, nothing downstream of it can be trusted.
	assert.Equal(t, []int{2, 3}, result.BrokenIndices)
}

func TestVerify_UnparseableLineIsCorruptionNotAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, logr.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("{not valid json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	l2, err := Open(path, logr.Discard())
	require.NoError(t, err)
	defer func() { _ = l2.Close() }()

	result, err := l2.Verify()
	require.NoError(t, err)
	assert.Equal(t, 1, result.CorruptLines)
	assert.Equal(t, 1, result.RecordCount)
	assert.False(t, result.OK())
}

func TestOpen_PrimesLastHashFromExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, logr.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	r1, err := l.Append(ctx, "user-1", "obj-1", ActionUpload, StatusSuccess)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2, err := Open(path, logr.Discard())
	require.NoError(t, err)
	defer func() { _ = l2.Close() }()

	r2, err := l2.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)

	assert.Equal(t, r1.Hash, r2.PrevHash)
}

func TestAppend_ConcurrentWritesPreserveChain(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	result, err := l.Verify()
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, n, result.RecordCount)
}

func TestRecords_SkipsCorruptLinesWithoutAborting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := Open(path, logr.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o640)
	require.NoError(t, err)
	_, err = f.WriteString("garbage line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = l.Append(ctx, "user-1", "obj-1", ActionAccess, StatusGrantedRewrap)
	require.NoError(t, err)

	records, err := l.Records()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// replaceNth replaces the nth (0-indexed) occurrence of old with new in s.
func replaceNth(s, old, new string, n int) string {
	count := 0
	idx := 0
	for {
		i := strings.Index(s[idx:], old)
		if i < 0 {
			return s
		}
		i += idx
		if count == n {
			return s[:i] + new + s[i+len(old):]
		}
		count++
		idx = i + len(old)
	}
}
