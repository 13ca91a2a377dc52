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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlContent = `
cloud_provider: gcp
bucket: fc-secure-1234
role: cleaner@project.iam.gserviceaccount.com
billing_project: my-project
`

func TestScheme(t *testing.T) {
	assert.Equal(t, "gs", StorageProfile{CloudProvider: ProviderGCP}.Scheme())
	assert.Equal(t, "s3", StorageProfile{CloudProvider: ProviderAWS}.Scheme())
	assert.Equal(t, "az", StorageProfile{CloudProvider: ProviderAzure}.Scheme())
	assert.Equal(t, "file", StorageProfile{CloudProvider: ProviderFile}.Scheme())
}

func TestObjectURI(t *testing.T) {
	p := StorageProfile{CloudProvider: ProviderGCP, Bucket: "b"}
	assert.Equal(t, "gs://b/", p.URIPrefix())
	assert.Equal(t, "gs://b/dir/x.txt", p.ObjectURI("dir/x.txt"))
	assert.Equal(t, "gs://other/dir/x.txt", p.WithBucket("other").ObjectURI("dir/x.txt"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, StorageProfile{CloudProvider: ProviderAWS, Bucket: "b"}.Validate())
	require.NoError(t, StorageProfile{CloudProvider: ProviderGCP}.Validate())
	require.Error(t, StorageProfile{}.Validate())
	require.Error(t, StorageProfile{CloudProvider: "dropbox"}.Validate())
	require.Error(t, StorageProfile{CloudProvider: ProviderFile}.Validate())
	require.Error(t, StorageProfile{CloudProvider: ProviderAzure}.Validate())
	require.NoError(t, StorageProfile{CloudProvider: ProviderAzure, StorageAccount: "acct"}.Validate())
}

func TestLoadFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(yamlContent), 0o644))

	p, err := LoadFile(fn)
	require.NoError(t, err)
	assert.Equal(t, ProviderGCP, p.CloudProvider)
	assert.Equal(t, "fc-secure-1234", p.Bucket)
	assert.Equal(t, "my-project", p.BillingProject)
	assert.Equal(t, "cleaner@project.iam.gserviceaccount.com", p.Role)
}

func TestLoadFile_env(t *testing.T) {
	t.Setenv("TEST_STORAGE_PROFILE", yamlContent)
	p, err := LoadFile("env:TEST_STORAGE_PROFILE")
	require.NoError(t, err)
	assert.Equal(t, "fc-secure-1234", p.Bucket)

	_, err = LoadFile("env:TEST_STORAGE_PROFILE_MISSING")
	require.Error(t, err)
}

func TestLoadFile_UnknownField(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(fn, []byte("cloud_provider: aws\nbucket: b\nflavor: x\n"), 0o644))
	_, err := LoadFile(fn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal storage profile")
}
