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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureStore implements Store using Azure Blob Storage.
type AzureStore struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates a new Azure Blob Storage-backed Store. When
// cfg.AccountName and cfg.AccountKey are both set it authenticates with a
// shared key; otherwise it falls back to azidentity's default credential
// chain (managed identity, environment, workload identity).
func NewAzureStore(ctx context.Context, containerName string, cfg AzureConfig) (*AzureStore, error) {
	_ = ctx
	if containerName == "" {
		return nil, errors.New("blobstore: container is required")
	}
	if cfg.AccountName == "" {
		return nil, errors.New("blobstore: account name is required")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

	var client *azblob.Client
	if cfg.AccountKey != "" {
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("blobstore: azure shared key credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: creating azure client: %w", err)
		}
	} else {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: azure default credential: %w", err)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("blobstore: creating azure client: %w", err)
		}
	}

	return &AzureStore{client: client, container: containerName}, nil
}

func (a *AzureStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := a.client.UploadBuffer(ctx, a.container, key, data, nil)
	if err != nil {
		return fmt.Errorf("blobstore: azure put: %w", err)
	}
	return nil
}

func (a *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("blobstore: azure get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("blobstore: azure read body: %w", err)
	}
	return buf.Bytes(), nil
}

func (a *AzureStore) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("blobstore: azure delete: %w", err)
	}
	return nil
}

func (a *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &key,
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("blobstore: azure list: %w", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil && *item.Name == key {
				return true, nil
			}
		}
	}
	return false, nil
}

func (a *AzureStore) Ping(ctx context.Context) error {
	cc := a.client.ServiceClient().NewContainerClient(a.container)
	if _, err := cc.GetProperties(ctx, nil); err != nil {
		return fmt.Errorf("blobstore: azure ping: %w", err)
	}
	return nil
}

func (a *AzureStore) Close() error { return nil }

var _ Store = (*AzureStore)(nil)
