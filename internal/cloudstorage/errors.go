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
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"

	"github.com/cardinalhq/arret/internal/errkind"
)

// s3 error codes that are worth retrying even when no HTTP status is
// available on the error.
var s3TransientCodes = map[string]bool{
	"SlowDown":             true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"RequestTimeout":       true,
	"Throttling":           true,
	"ThrottlingException":  true,
	"RequestLimitExceeded": true,
}

type httpStatusError interface {
	HTTPStatusCode() int
}

// classifyS3 attaches an errkind to an error from the AWS SDK.
func classifyS3(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if s3TransientCodes[apiErr.ErrorCode()] {
			return errkind.Transient(err)
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return errkind.Transient(err)
		}
	}
	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return errkind.WrapHTTPStatus(statusErr.HTTPStatusCode(), err)
	}
	return classifyDefault(err)
}

// classifyGCS attaches an errkind to an error from the GCS client.
func classifyGCS(err error) error {
	if err == nil {
		return nil
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return errkind.WrapHTTPStatus(gErr.Code, err)
	}
	return classifyDefault(err)
}

// classifyAzure attaches an errkind to an error from the Azure SDK.
func classifyAzure(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return errkind.WrapHTTPStatus(respErr.StatusCode, err)
	}
	return classifyDefault(err)
}

// classifyDefault marks network-level failures transient and leaves
// everything else as permanent so it is not retried blindly.
func classifyDefault(err error) error {
	switch errkind.KindOf(err) {
	case errkind.KindTransient:
		return errkind.Transient(err)
	case errkind.KindUnknown:
		return errkind.Permanent(err)
	default:
		return err
	}
}
