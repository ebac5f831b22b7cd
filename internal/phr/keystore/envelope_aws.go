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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

type awsEnvelopeClient interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSEnvelope seals bytes with an AES-256 data key from AWS KMS
// GenerateDataKey, sealing the payload with AES-256-GCM and storing the
// KMS-wrapped data key beside it.
type AWSEnvelope struct {
	client awsEnvelopeClient
	keyID  string
}

// NewAWSEnvelope creates an AWSEnvelope backed by AWS KMS key keyID in region.
func NewAWSEnvelope(ctx context.Context, keyID, region, accessKeyID, secretAccessKey string) (*AWSEnvelope, error) {
	if keyID == "" {
		return nil, fmt.Errorf("keystore: aws envelope key id is required")
	}
	if region == "" {
		return nil, fmt.Errorf("keystore: aws envelope region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("keystore: loading AWS config: %w", err)
	}

	return &AWSEnvelope{client: kms.NewFromConfig(awsCfg), keyID: keyID}, nil
}

type awsSealedEnvelope struct {
	WrappedDEK []byte `json:"wrapped_dek"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (e *AWSEnvelope) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	gen, err := e.client.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(e.keyID),
		KeySpec: types.DataKeySpecAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS GenerateDataKey: %w", err)
	}

	nonce, ciphertext, err := gcmSeal(gen.Plaintext, plaintext)
	if err != nil {
		return nil, err
	}

	return json.Marshal(awsSealedEnvelope{WrappedDEK: gen.CiphertextBlob, Nonce: nonce, Ciphertext: ciphertext})
}

func (e *AWSEnvelope) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var env awsSealedEnvelope
	if err := json.Unmarshal(ciphertext, &env); err != nil {
		return nil, fmt.Errorf("keystore: invalid sealed envelope: %w", err)
	}

	dek, err := e.client.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob: env.WrappedDEK,
		KeyId:          aws.String(e.keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: KMS Decrypt: %w", err)
	}

	return gcmOpen(dek.Plaintext, env.Nonce, env.Ciphertext)
}

func (e *AWSEnvelope) Close() error { return nil }

func gcmSeal(dek, plaintext []byte) (nonce, ciphertext []byte, err error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("keystore: GCM init: %w", err)
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("keystore: generating nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

func gcmOpen(dek, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, fmt.Errorf("keystore: AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: GCM init: %w", err)
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

var _ Envelope = (*AWSEnvelope)(nil)
