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

package awsclient

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/arret/internal/storageprofile"
)

func testManager() *Manager {
	return newManager(aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
}

func TestProfileOptions(t *testing.T) {
	sc := &s3Config{}
	for _, o := range profileOptions(storageprofile.StorageProfile{
		Role:         "arn:aws:iam::123456789012:role/cleaner",
		Region:       "us-west-2",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		InsecureTLS:  true,
	}) {
		o(sc)
	}

	assert.Equal(t, "arn:aws:iam::123456789012:role/cleaner", sc.RoleARN)
	assert.Equal(t, "us-west-2", sc.Region)
	assert.Len(t, sc.applyS3s, 2)
	assert.Len(t, sc.applyConfigs, 2)
}

func TestGetS3ForProfile(t *testing.T) {
	mgr := testManager()
	client, err := mgr.GetS3ForProfile(context.Background(), storageprofile.StorageProfile{
		Region:       "eu-central-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
	})
	require.NoError(t, err)

	o := client.Client.Options()
	assert.Equal(t, "eu-central-1", o.Region)
	require.NotNil(t, o.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *o.BaseEndpoint)
	assert.True(t, o.UsePathStyle)
	assert.Equal(t, sdkMaxAttempts, o.RetryMaxAttempts)
	assert.NotNil(t, client.Tracer)
}

func TestCredentialsCachedPerRole(t *testing.T) {
	mgr := testManager()

	base := mgr.credentialsFor(roleKey{Region: "us-east-1"})
	assert.Equal(t, mgr.baseCfg.Credentials, base)

	a := roleKey{Region: "us-east-1", RoleARN: "arn:aws:iam::1:role/a"}
	first := mgr.credentialsFor(a)
	assert.Same(t, first, mgr.credentialsFor(a))

	mgr.credentialsFor(roleKey{Region: "us-west-2", RoleARN: "arn:aws:iam::1:role/a"})
	assert.Len(t, mgr.providers, 3)
}

func TestAssumeRoleSessionName(t *testing.T) {
	mgr := newManager(aws.Config{}, WithAssumeRoleSessionName("nightly"))
	assert.Equal(t, "nightly", mgr.sessionName)
	assert.Equal(t, "arret", testManager().sessionName)
}
