package objstore

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

type azureAPI interface {
	DownloadStream(ctx context.Context, container, blob string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

var newAzureClient = func(cfg AzureConfig) (azureAPI, error) {
	switch {
	case cfg.ConnectionString != "":
		client, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, nil
	case cfg.AccountURL != "":
		client, err := azblob.NewClientWithNoCredential(cfg.AccountURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("azure: account_url or connection_string is required")
	}
}

func (s *Store) azureClient() (azureAPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.azure == nil {
		c, err := newAzureClient(s.cfg.Azure)
		if err != nil {
			return nil, err
		}
		s.azure = c
	}
	return s.azure, nil
}

func (s *Store) openAzure(ctx context.Context, loc Location) (io.ReadCloser, error) {
	c, err := s.azureClient()
	if err != nil {
		return nil, err
	}
	resp, err := c.DownloadStream(ctx, loc.Bucket, loc.Key, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
