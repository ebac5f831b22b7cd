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

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azkeys"
)

const azureEnvelopeDEKSize = 32
const azureWrapAlgorithm = azkeys.EncryptionAlgorithmRSAOAEP256

type azkeysClient interface {
	WrapKey(ctx context.Context, keyName, keyVersion string, parameters azkeys.KeyOperationParameters, options *azkeys.WrapKeyOptions) (azkeys.WrapKeyResponse, error)
	UnwrapKey(ctx context.Context, keyName, keyVersion string, parameters azkeys.KeyOperationParameters, options *azkeys.UnwrapKeyOptions) (azkeys.UnwrapKeyResponse, error)
}

// AzureEnvelope seals bytes by wrapping a locally-generated AES-256 data key
// with an Azure Key Vault key.
type AzureEnvelope struct {
	client     azkeysClient
	keyName    string
	keyVersion string
}

// NewAzureEnvelope creates an AzureEnvelope backed by the Key Vault key
// keyName at vaultURL, authenticating via azidentity's default credential
// chain.
func NewAzureEnvelope(vaultURL, keyName string) (*AzureEnvelope, error) {
	if vaultURL == "" {
		return nil, fmt.Errorf("keystore: azure envelope vault URL is required")
	}
	if keyName == "" {
		return nil, fmt.Errorf("keystore: azure envelope key name is required")
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: azure default credential: %w", err)
	}

	client, err := azkeys.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating azure key vault client: %w", err)
	}

	return &AzureEnvelope{client: client, keyName: keyName}, nil
}

type azureSealedEnvelope struct {
	WrappedDEK []byte `json:"wrapped_dek"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (e *AzureEnvelope) Seal(ctx context.Context, plaintext []byte) ([]byte, error) {
	dek := make([]byte, azureEnvelopeDEKSize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("keystore: generating DEK: %w", err)
	}

	algo := azureWrapAlgorithm
	wrapResp, err := e.client.WrapKey(ctx, e.keyName, e.keyVersion, azkeys.KeyOperationParameters{
		Algorithm: &algo,
		Value:     dek,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: key vault wrap key: %w", err)
	}

	nonce, ciphertext, err := gcmSeal(dek, plaintext)
	if err != nil {
		return nil, err
	}

	return json.Marshal(azureSealedEnvelope{WrappedDEK: wrapResp.Result, Nonce: nonce, Ciphertext: ciphertext})
}

func (e *AzureEnvelope) Open(ctx context.Context, ciphertext []byte) ([]byte, error) {
	var env azureSealedEnvelope
	if err := json.Unmarshal(ciphertext, &env); err != nil {
		return nil, fmt.Errorf("keystore: invalid sealed envelope: %w", err)
	}

	algo := azureWrapAlgorithm
	unwrapResp, err := e.client.UnwrapKey(ctx, e.keyName, e.keyVersion, azkeys.KeyOperationParameters{
		Algorithm: &algo,
		Value:     env.WrappedDEK,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("keystore: key vault unwrap key: %w", err)
	}

	return gcmOpen(unwrapResp.Result, env.Nonce, env.Ciphertext)
}

func (e *AzureEnvelope) Close() error { return nil }

var _ Envelope = (*AzureEnvelope)(nil)
