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

// Package config defines the PHR server's CLI flags and environment
// fallbacks, in the same flag-plus-envFallback shape cmd/session-api uses.
// Every setting has a flag on the standard library's default flag set.
// Every flag except --session-ttl and --session-secure-cookie has an
// environment variable fallback, so the binary runs under a container
// orchestrator that injects config as env vars.
package config

import (
	"errors"
	"flag"
	"os"
	"time"
)

// Config groups every setting the PHR server binary needs to start.
type Config struct {
	APIAddr     string
	HealthAddr  string
	MetricsAddr string

	PostgresConn string

	// KeyStoreDir is the root directory FileKeyStore (or the KMS-wrapped
	// variant) persists PEM material under.
	KeyStoreDir string

	// KMSBackend selects the envelope used to seal the SRS private key at
	// rest: "", "aws", "gcp", or "azure". Empty disables envelope sealing.
	KMSBackend      string
	KMSKeyID        string
	KMSRegion       string
	AWSAccessKeyID  string
	AWSSecretKey    string
	GCPCredsJSON    string
	AzureVaultURL   string
	AzureKeyName    string

	// BlobBackend selects blobstore.BackendType: "local", "s3", "gcs",
	// "azure", or "memory".
	BlobBackend  string
	BlobLocalDir string
	BlobBucket   string
	S3Region     string
	S3Endpoint   string
	S3PathStyle  bool

	// AuditLogPath is the append-only hash-chained log file.
	AuditLogPath string

	// SessionSigningKey signs session cookies (HS256). Required.
	SessionSigningKey   string
	SessionTTL          time.Duration
	SessionSecureCookie bool
}

// Parse parses CLI flags, applies environment fallbacks, and validates the
// required settings. Call once at process startup.
func Parse() (*Config, error) {
	c := &Config{}

	flag.StringVar(&c.APIAddr, "api-addr", ":8080", "API server listen address")
	flag.StringVar(&c.HealthAddr, "health-addr", ":8081", "Health probe listen address")
	flag.StringVar(&c.MetricsAddr, "metrics-addr", ":9090", "Metrics server listen address")
	flag.StringVar(&c.PostgresConn, "postgres-conn", "", "Postgres connection string")
	flag.StringVar(&c.KeyStoreDir, "keystore-dir", "./data/keys", "Directory for SRS and user key material")
	flag.StringVar(&c.KMSBackend, "kms-backend", "", "Envelope backend for the SRS private key (aws, gcp, azure)")
	flag.StringVar(&c.KMSKeyID, "kms-key-id", "", "KMS key identifier (AWS/GCP)")
	flag.StringVar(&c.KMSRegion, "kms-region", "", "KMS region (AWS)")
	flag.StringVar(&c.AWSAccessKeyID, "aws-access-key-id", "", "AWS access key id (KMS envelope)")
	flag.StringVar(&c.AWSSecretKey, "aws-secret-access-key", "", "AWS secret access key (KMS envelope)")
	flag.StringVar(&c.GCPCredsJSON, "gcp-credentials-json", "", "GCP service account credentials JSON (KMS envelope)")
	flag.StringVar(&c.AzureVaultURL, "azure-vault-url", "", "Azure Key Vault URL (KMS envelope)")
	flag.StringVar(&c.AzureKeyName, "azure-key-name", "", "Azure Key Vault key name (KMS envelope)")
	flag.StringVar(&c.BlobBackend, "blob-backend", "local", "Blob storage backend (local, s3, gcs, azure, memory)")
	flag.StringVar(&c.BlobLocalDir, "blob-local-dir", "./data/blobs", "Root directory for the local blob backend")
	flag.StringVar(&c.BlobBucket, "blob-bucket", "", "Bucket/container name (s3, gcs, azure)")
	flag.StringVar(&c.S3Region, "s3-region", "", "S3 region")
	flag.StringVar(&c.S3Endpoint, "s3-endpoint", "", "S3 endpoint (for S3-compatible services)")
	flag.BoolVar(&c.S3PathStyle, "s3-path-style", false, "Use path-style S3 addressing")
	flag.StringVar(&c.AuditLogPath, "audit-log-path", "./data/audit.log", "Path to the append-only audit log file")
	flag.StringVar(&c.SessionSigningKey, "session-signing-key", "", "HMAC key signing session cookies")
	flag.DurationVar(&c.SessionTTL, "session-ttl", 24*time.Hour, "Session cookie lifetime")
	flag.BoolVar(&c.SessionSecureCookie, "session-secure-cookie", true, "Set the Secure flag on session cookies")
	flag.Parse()

	c.applyEnvFallbacks()

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnvFallbacks() {
	envFallback(&c.APIAddr, ":8080", "API_ADDR")
	envFallback(&c.HealthAddr, ":8081", "HEALTH_ADDR")
	envFallback(&c.MetricsAddr, ":9090", "METRICS_ADDR")
	envFallback(&c.PostgresConn, "", "POSTGRES_CONN")
	envFallback(&c.KeyStoreDir, "./data/keys", "KEYSTORE_DIR")
	envFallback(&c.KMSBackend, "", "KMS_BACKEND")
	envFallback(&c.KMSKeyID, "", "KMS_KEY_ID")
	envFallback(&c.KMSRegion, "", "KMS_REGION")
	envFallback(&c.AWSAccessKeyID, "", "AWS_ACCESS_KEY_ID")
	envFallback(&c.AWSSecretKey, "", "AWS_SECRET_ACCESS_KEY")
	envFallback(&c.GCPCredsJSON, "", "GCP_CREDENTIALS_JSON")
	envFallback(&c.AzureVaultURL, "", "AZURE_VAULT_URL")
	envFallback(&c.AzureKeyName, "", "AZURE_KEY_NAME")
	envFallback(&c.BlobBackend, "local", "BLOB_BACKEND")
	envFallback(&c.BlobLocalDir, "./data/blobs", "BLOB_LOCAL_DIR")
	envFallback(&c.BlobBucket, "", "BLOB_BUCKET")
	envFallback(&c.S3Region, "", "S3_REGION")
	envFallback(&c.S3Endpoint, "", "S3_ENDPOINT")
	envFallback(&c.AuditLogPath, "./data/audit.log", "AUDIT_LOG_PATH")
	envFallback(&c.SessionSigningKey, "", "SESSION_SIGNING_KEY")

	envBoolFallback(&c.S3PathStyle, "S3_PATH_STYLE")
}

func (c *Config) validate() error {
	if c.PostgresConn == "" {
		return errors.New("config: --postgres-conn or POSTGRES_CONN is required")
	}
	if c.SessionSigningKey == "" {
		return errors.New("config: --session-signing-key or SESSION_SIGNING_KEY is required")
	}
	switch c.KMSBackend {
	case "", "aws", "gcp", "azure":
	default:
		return errors.New("config: kms-backend must be one of aws, gcp, azure")
	}
	return nil
}

// envFallback sets *dst from the environment variable envKey when *dst still
// equals the default value and the environment variable is non-empty.
func envFallback(dst *string, defaultVal, envKey string) {
	if *dst == defaultVal {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}

// envBoolFallback enables a boolean flag from an environment variable when
// the flag is still false and the env var is "true".
func envBoolFallback(dst *bool, envKey string) {
	if !*dst && os.Getenv(envKey) == "true" {
		*dst = true
	}
}
