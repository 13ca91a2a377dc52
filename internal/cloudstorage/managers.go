// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cloudstorage

import (
	"context"
	"fmt"

	"github.com/cardinalhq/arret/internal/awsclient"
	"github.com/cardinalhq/arret/internal/azureclient"
	"github.com/cardinalhq/arret/internal/gcpclient"
	"github.com/cardinalhq/arret/internal/storageprofile"
)

// CloudManagers holds all cloud provider managers for unified access. It
// implements ClientProvider to allow callers to create storage clients without
// depending on the concrete struct, enabling easier testing.
type CloudManagers struct {
	AWS   *awsclient.Manager
	Azure *azureclient.Manager
	GCP   *gcpclient.Manager
}

var _ ClientProvider = (*CloudManagers)(nil)

// NewCloudManagers creates managers for all supported cloud providers.
func NewCloudManagers(ctx context.Context) (*CloudManagers, error) {
	awsManager, err := awsclient.NewManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS manager: %w", err)
	}

	azureManager, err := azureclient.NewManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure manager: %w", err)
	}

	gcpManager, err := gcpclient.NewManager(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCP manager: %w", err)
	}

	return &CloudManagers{
		AWS:   awsManager,
		Azure: azureManager,
		GCP:   gcpManager,
	}, nil
}

// NewClient creates a storage Client for the given profile.
func (m *CloudManagers) NewClient(ctx context.Context, profile storageprofile.StorageProfile) (Client, error) {
	switch profile.CloudProvider {
	case storageprofile.ProviderAWS:
		awsS3Client, err := m.AWS.GetS3ForProfile(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return &s3Client{awsS3Client: awsS3Client}, nil
	case storageprofile.ProviderGCP:
		gcsStorage, err := m.GCP.GetStorageForProfile(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return &gcsClient{storageClient: gcsStorage}, nil
	case storageprofile.ProviderAzure:
		azureBlobClient, err := m.Azure.GetBlobForProfile(ctx, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
		}
		return &azureClient{blobClient: azureBlobClient}, nil
	case storageprofile.ProviderFile:
		return NewFileClient(profile.Root), nil
	default:
		return nil, fmt.Errorf("unsupported cloud provider: %s", profile.CloudProvider)
	}
}

// Close releases provider clients that hold connections.
func (m *CloudManagers) Close() error {
	if m.GCP != nil {
		return m.GCP.Close()
	}
	return nil
}
