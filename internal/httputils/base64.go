// Package httputils provides the URI-escaping and Base64 helpers the
// HTTP/2 connection layer needs, grounded on the original's
// cc/core/utils/src/http.cc escaping helpers and
// cc/core/utils/test/base64_test.cc round-trip property.
package httputils

import (
	"encoding/base64"
	"net/url"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
)

// Base64Encode encodes data using standard (RFC 4648) Base64, matching
// the original's encoding alphabet.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode decodes a Base64 string, reproducing the original's
// length-validation edge case: an encoded length of 4k+1 (for any k)
// is never a valid Base64 encoding and is rejected with
// SC_CORE_UTILS_INVALID_BASE64_ENCODING_LENGTH rather than whatever
// error the stdlib decoder happens to report.
func Base64Decode(encoded string) ([]byte, asynccontext.ExecutionResult) {
	if len(encoded)%4 == 1 {
		return nil, asynccontext.Failure(asynccontext.SC_CORE_UTILS_INVALID_BASE64_ENCODING_LENGTH)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, asynccontext.Failure(asynccontext.SC_CORE_UTILS_INVALID_BASE64_ENCODING_LENGTH)
	}

	return decoded, asynccontext.Success()
}

// EscapeURIQuery percent-escapes only the query component of a URI,
// matching the original's GetEscapedUriWithQuery which leaves the path
// untouched and escapes query parameters individually.
func EscapeURIQuery(path, rawQuery string) (string, asynccontext.ExecutionResult) {
	if rawQuery == "" {
		return path, asynccontext.Success()
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", asynccontext.Failure(asynccontext.SC_CORE_UTILS_CURL_INIT_ERROR)
	}

	return path + "?" + values.Encode(), asynccontext.Success()
}
