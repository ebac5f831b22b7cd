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

// Package blobstore implements the PHR system's blind object storage: it
// writes and reads opaque ciphertext bytes by logical name and performs no
// transformation, re-chunking, compression, or re-encryption of its own.
// Byte-for-byte identity between Put and Get is the contract every backend
// below must uphold.
package blobstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested blob does not exist.
var ErrNotFound = errors.New("blobstore: object not found")

// Store is the blind object storage contract consumed by OwnerOps and the
// KeyBroker. It never reads or interprets the bytes it holds.
type Store interface {
	// Put writes data under key, byte-identical to what the caller supplied.
	Put(ctx context.Context, key string, data []byte) error
	// Get retrieves the bytes stored under key. Returns ErrNotFound if the
	// key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes the object at key. Returns ErrNotFound if missing.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object exists at key.
	Exists(ctx context.Context, key string) (bool, error)
	// Ping checks connectivity to the underlying store.
	Ping(ctx context.Context) error
	// Close releases resources held by the store.
	Close() error
}

// BackendType identifies the object storage backend.
type BackendType string

const (
	// BackendLocal stores ciphertext blobs as files on local disk. This is
	// the default backend.
	BackendLocal BackendType = "local"
	// BackendS3 uses Amazon S3 or an S3-compatible service (e.g. MinIO).
	BackendS3 BackendType = "s3"
	// BackendGCS uses Google Cloud Storage.
	BackendGCS BackendType = "gcs"
	// BackendAzure uses Azure Blob Storage.
	BackendAzure BackendType = "azure"
	// BackendMemory is an in-process store used by unit tests.
	BackendMemory BackendType = "memory"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend BackendType

	// LocalDir is the root directory for BackendLocal.
	LocalDir string

	// Bucket is the bucket (S3/GCS) or container (Azure) name.
	Bucket string

	S3    *S3Config
	GCS   *GCSConfig
	Azure *AzureConfig
}

// S3Config contains S3-specific settings.
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// GCSConfig contains GCS-specific settings.
type GCSConfig struct {
	CredentialsJSON []byte
}

// AzureConfig contains Azure Blob Storage-specific settings.
type AzureConfig struct {
	AccountName string
	AccountKey  string
}

// New constructs a Store from cfg. ctx is used only to establish
// connectivity for cloud backends; it is not retained.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", BackendLocal:
		return NewLocalStore(cfg.LocalDir)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendS3:
		s3cfg := S3Config{}
		if cfg.S3 != nil {
			s3cfg = *cfg.S3
		}
		return NewS3Store(ctx, cfg.Bucket, s3cfg)
	case BackendGCS:
		gcscfg := GCSConfig{}
		if cfg.GCS != nil {
			gcscfg = *cfg.GCS
		}
		return NewGCSStore(ctx, cfg.Bucket, gcscfg)
	case BackendAzure:
		azcfg := AzureConfig{}
		if cfg.Azure != nil {
			azcfg = *cfg.Azure
		}
		return NewAzureStore(ctx, cfg.Bucket, azcfg)
	default:
		return nil, errors.New("blobstore: unknown backend " + string(cfg.Backend))
	}
}
