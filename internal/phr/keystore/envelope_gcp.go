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
	"encoding/json"
	"fmt"
	"io"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"google.golang.org/api/option"
)

const gcpEnvelopeDEKSize = 32

type gcpEnvelopeClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest) (*kmspb.DecryptResponse, error)
	Close() error
}

// GCPEnvelope seals bytes by wrapping a locally-generated AES-256 data key
// with GCP Cloud KMS.
type GCPEnvelope struct {
	client gcpEnvelopeClient
	keyID  string
}

// NewGCPEnvelope creates a GCPEnvelope backed by the Cloud KMS crypto key
// keyID (full resource name).
func NewGCPEnvelope(ctx context.Context, keyID string, credentialsJSON []byte) (*GCPEnvelope, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keystore: gcp envelope key id is required")
	}

	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := kms.NewKeyManagementClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating GCP KMS client: %w", err)
	}

	return &GCPEnvelope{client: client, keyID: keyID}, nil
}

type gcpSealedEnvelope struct {
	WrappedDEK []byte `json:"wrapped_dek"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (e *GCPEnvelope) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	dek := make([]byte, gcpEnvelopeDEKSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("keystore: generating DEK: %w", err)
	}

	wrapped, err := e.client.Encrypt(ctx, &kmspb.EncryptRequest{Name: e.keyID, Plaintext: dek})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS Encrypt (wrap DEK): %w", err)
	}

	nonce, ciphertext, err := gcmSeal(dek, plaintext)
	if err != nil {
		return nil, err
	}

	return json.Marshal(gcpSealedEnvelope{WrappedDEK: wrapped.Ciphertext, Nonce: nonce, Ciphertext: ciphertext})
}

func (e *GCPEnvelope) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var env gcpSealedEnvelope
	if err := json.Unmarshal(ciphertext, &env); err != nil {
		return nil, fmt.Errorf("keystore: invalid sealed envelope: %w", err)
	}

	dek, err := e.client.Decrypt(ctx, &kmspb.DecryptRequest{Name: e.keyID, Ciphertext: env.WrappedDEK})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS Decrypt: %w", err)
	}

	return gcmOpen(dek.Plaintext, env.Nonce, env.Ciphertext)
}

func (e *GCPEnvelope) Close() error { return e.client.Close() }

var _ Envelope = (*GCPEnvelope)(nil)
