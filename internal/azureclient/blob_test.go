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

package azureclient

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlobOptions(t *testing.T) {
	cfg := blobConfig{}
	WithBlobStorageAccount("acct")(&cfg)
	WithBlobEndpoint("https://acct.example/")(&cfg)
	assert.Equal(t, "acct", cfg.StorageAccount)
	assert.Equal(t, "https://acct.example/", cfg.Endpoint)
	assert.Equal(t, blobClientKey{StorageAccount: "acct", Endpoint: "https://acct.example/"}, blobClientKey(cfg))
}
