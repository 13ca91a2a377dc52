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

package storageprofile

import (
	"errors"
	"fmt"
	"strings"
)

// Supported cloud providers.
const (
	ProviderGCP   = "gcp"
	ProviderAWS   = "aws"
	ProviderAzure = "azure"
	ProviderFile  = "file"
)

// StorageProfile identifies one bucket and how to reach it.
type StorageProfile struct {
	CloudProvider string `json:"cloud_provider" yaml:"cloud_provider" mapstructure:"cloud_provider"`
	Bucket        string `json:"bucket" yaml:"bucket" mapstructure:"bucket"`
	Region        string `json:"region,omitempty" yaml:"region,omitempty" mapstructure:"region"`
	// Role is an IAM role ARN to assume (aws) or a service account to
	// impersonate (gcp).
	Role     string `json:"role,omitempty" yaml:"role,omitempty" mapstructure:"role"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" mapstructure:"endpoint"`
	// BillingProject is charged for requests against requester-pays
	// buckets (gcp).
	BillingProject string `json:"billing_project,omitempty" yaml:"billing_project,omitempty" mapstructure:"billing_project"`
	// StorageAccount is the Azure storage account holding the container.
	StorageAccount string `json:"storage_account,omitempty" yaml:"storage_account,omitempty" mapstructure:"storage_account"`
	// Root is the base directory for the file provider.
	Root         string `json:"root,omitempty" yaml:"root,omitempty" mapstructure:"root"`
	InsecureTLS  bool   `json:"insecure_tls,omitempty" yaml:"insecure_tls,omitempty" mapstructure:"insecure_tls"`
	UsePathStyle bool   `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty" mapstructure:"use_path_style"`
}

// Scheme returns the URI scheme used when objects in this bucket are
// referenced from table data.
func (p StorageProfile) Scheme() string {
	switch p.CloudProvider {
	case ProviderGCP, "":
		return "gs"
	case ProviderAWS:
		return "s3"
	case ProviderAzure:
		return "az"
	case ProviderFile:
		return "file"
	default:
		return strings.ToLower(p.CloudProvider)
	}
}

// URIPrefix returns "scheme://bucket/".
func (p StorageProfile) URIPrefix() string {
	return p.Scheme() + "://" + p.Bucket + "/"
}

// ObjectURI returns the full URI of an object name in this bucket.
func (p StorageProfile) ObjectURI(name string) string {
	return p.URIPrefix() + name
}

// Validate checks that the profile names a known provider. An empty bucket
// is allowed here because it can be discovered from a workspace later.
func (p StorageProfile) Validate() error {
	switch p.CloudProvider {
	case ProviderGCP, ProviderAWS:
	case ProviderAzure:
		if p.StorageAccount == "" && p.Endpoint == "" {
			return errors.New("azure storage profile requires storage_account or endpoint")
		}
	case ProviderFile:
		if p.Root == "" {
			return errors.New("file storage profile requires root")
		}
	case "":
		return errors.New("cloud_provider is required")
	default:
		return fmt.Errorf("unsupported cloud provider: %s", p.CloudProvider)
	}
	return nil
}

// WithBucket returns a copy of p pointing at bucket.
func (p StorageProfile) WithBucket(bucket string) StorageProfile {
	p.Bucket = bucket
	return p
}
