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

// Package audit implements the append-only, hash-chained log that is the
// system's tamper-evident record of every access decision. Appends are
// synchronous and serialized: losing or reordering a record breaks the
// chain, so there is no buffering, no background worker, and no batching.
package audit

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-logr/logr"
)

// Action values recorded by the broker and OwnerOps.
const (
	ActionAccess     = "ACCESS"
	ActionRevoke     = "REVOKE"
	ActionRevokeUser = "REVOKE_USER"
	ActionAttrSet    = "ATTR_SET"
	ActionAttrRemove = "ATTR_REMOVE"
	ActionUpload     = "UPLOAD"
)

// Status values recorded for access requests, per the data model's
// invariant that every access attempt ends in exactly one of these.
const (
	StatusGrantedRewrap = "GRANTED_REWRAP"
	StatusDeniedPolicy  = "DENIED_POLICY"
	StatusDeniedRevoked = "DENIED_REVOKED"
	StatusDeniedRole    = "DENIED_ROLE"
	StatusDeniedAuth    = "DENIED_AUTH"
	StatusDeniedOwner   = "DENIED_OWNER"
	StatusInvalid       = "INVALID_REQUEST"
	StatusSuccess       = "SUCCESS"
)

// Record is one entry in the hash chain. Its Go field names follow the
// package's own vocabulary (ActorID, ObjectName); MarshalJSON/UnmarshalJSON
// below translate to and from the wire vocabulary (user, file, integer
// unix-seconds timestamp) so the on-disk format and the canonical hash
// input both match what an external consumer of the log expects.
type Record struct {
	Timestamp  time.Time
	ActorID    string
	ObjectName string
	Action     string
	Status     string
	PrevHash   string
	Hash       string
}

// wireRecord is the exact JSON shape of one audit log line: timestamp as
// an integer (unix seconds), user, file.
type wireRecord struct {
	Timestamp int64  `json:"timestamp"`
	User      string `json:"user"`
	File      string `json:"file"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
}

// MarshalJSON renders r in the on-disk wire format.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Timestamp: r.Timestamp.UTC().Unix(),
		User:      r.ActorID,
		File:      r.ObjectName,
		Action:    r.Action,
		Status:    r.Status,
		PrevHash:  r.PrevHash,
		Hash:      r.Hash,
	})
}

// UnmarshalJSON parses the on-disk wire format back into r.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Timestamp = time.Unix(w.Timestamp, 0).UTC()
	r.ActorID = w.User
	r.ObjectName = w.File
	r.Action = w.Action
	r.Status = w.Status
	r.PrevHash = w.PrevHash
	r.Hash = w.Hash
	return nil
}

// canonicalFields is the representation hashed for a record, always with
// hash omitted and keys in sorted order (Go's encoding/json sorts map keys
// on marshal, which is what makes a map, not a struct, the right vehicle
// for the canonical form), using the same wire field names and integer
// unix-seconds timestamp that MarshalJSON produces, so a record's stored
// hash and its on-disk JSON agree on what was hashed.
func canonicalFields(r Record) map[string]any {
	return map[string]any{
		"action":    r.Action,
		"user":      r.ActorID,
		"file":      r.ObjectName,
		"prev_hash": r.PrevHash,
		"status":    r.Status,
		"timestamp": r.Timestamp.UTC().Unix(),
	}
}

func computeHash(r Record) (string, error) {
	data, err := json.Marshal(canonicalFields(r))
	if err != nil {
		return "", fmt.Errorf("audit: marshaling canonical record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Log is a single physical append-only file holding the hash chain. All
// appends are serialized through mu; the chain's integrity depends on no
// two goroutines ever computing prevHash from the same predecessor.
type Log struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
	log      logr.Logger
}

// Open opens (creating if absent) the log file at path and primes the
// in-memory lastHash by scanning any existing content.
func Open(path string, log logr.Logger) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: opening log file: %w", err)
	}

	l := &Log{file: f, log: log.WithName("audit")}

	last, err := lastHashInFile(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("audit: scanning existing log: %w", err)
	}
	l.lastHash = last

	return l, nil
}

func lastHashInFile(f *os.File) (string, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return "", err
	}
	defer func() { _, _ = f.Seek(0, 2) }()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	last := ""
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue // corruption marker; ignored for chain priming, reported by Verify
		}
		last = r.Hash
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return last, nil
}

// Append writes a single record, serialized against all concurrent
// appends, and fsyncs before returning so a crash immediately after
// Append cannot lose an entry the caller believes was durable.
func (l *Log) Append(_ context.Context, actorID, objectName, action, status string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := Record{
		Timestamp:  time.Now().UTC(),
		ActorID:    actorID,
		ObjectName: objectName,
		Action:     action,
		Status:     status,
		PrevHash:   l.lastHash,
	}

	hash, err := computeHash(r)
	if err != nil {
		return Record{}, err
	}
	r.Hash = hash

	line, err := json.Marshal(r)
	if err != nil {
		return Record{}, fmt.Errorf("audit: marshaling record: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.file.Write(line); err != nil {
		l.log.Error(err, "audit append failed", "objectName", objectName, "action", action)
		return Record{}, fmt.Errorf("audit: writing record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.log.Error(err, "audit fsync failed", "objectName", objectName, "action", action)
		return Record{}, fmt.Errorf("audit: syncing record: %w", err)
	}

	l.lastHash = r.Hash
	return r, nil
}

// Records reads every parseable record in storage order. Lines that fail
// to parse are skipped (they are corruption markers, reported only by
// Verify) and do not abort the scan.
func (l *Log) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return readRecords(l.file)
}

func readRecords(f *os.File) ([]Record, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	defer func() { _, _ = f.Seek(0, 2) }()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyResult is the outcome of scanning the chain for breaks.
type VerifyResult struct {
	RecordCount   int
	CorruptLines  int
	BrokenIndices []int
}

// OK reports whether the chain has no breaks and no corrupt lines.
func (v VerifyResult) OK() bool {
	return len(v.BrokenIndices) == 0 && v.CorruptLines == 0
}

// Verify recomputes each record's hash in storage order against the
// running prev_hash. Every record from the first break onward is reported
// as broken, since nothing chained after a failed link can be trusted.
// Unparseable lines are counted in CorruptLines and do not stop the scan.
func (l *Log) Verify() (VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.file
	if _, err := f.Seek(0, 0); err != nil {
		return VerifyResult{}, err
	}
	defer func() { _, _ = f.Seek(0, 2) }()

	var result VerifyResult
	prevHash := ""
	chainBroken := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	idx := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			result.CorruptLines++
			idx++
			continue
		}

		result.RecordCount++

		broken := chainBroken
		if !broken {
			if r.PrevHash != prevHash {
				broken = true
			} else {
				wantHash, err := computeHash(Record{
					Timestamp:  r.Timestamp,
					ActorID:    r.ActorID,
					ObjectName: r.ObjectName,
					Action:     r.Action,
					Status:     r.Status,
					PrevHash:   r.PrevHash,
				})
				if err != nil || wantHash != r.Hash {
					broken = true
				}
			}
		}
		if broken {
			result.BrokenIndices = append(result.BrokenIndices, idx)
			chainBroken = true
		}

		prevHash = r.Hash
		idx++
	}
	if err := scanner.Err(); err != nil {
		return result, err
	}

	return result, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
