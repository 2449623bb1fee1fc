package httputils

import (
	"bytes"
	"testing"

	"github.com/privacysandbox/pbs-client-go/internal/asynccontext"
)

func TestBase64RoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("ab"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("hello, pbs client"),
	}
	for _, c := range cases {
		encoded := Base64Encode(c)
		decoded, result := Base64Decode(encoded)
		if !result.Successful() {
			t.Fatalf("Base64Decode(%q) failed: %v", encoded, result)
		}
		if !bytes.Equal(decoded, c) {
			t.Fatalf("round trip mismatch: got %q, want %q", decoded, c)
		}
	}
}

func TestBase64DecodeRejectsInvalidLength(t *testing.T) {
	// A string of length 4k+1 is never a valid Base64 encoding.
	invalid := "AAAAA"
	_, result := Base64Decode(invalid)
	if result.Successful() {
		t.Fatal("expected failure for length-4k+1 input")
	}
	if result.Code != asynccontext.SC_CORE_UTILS_INVALID_BASE64_ENCODING_LENGTH {
		t.Fatalf("expected SC_CORE_UTILS_INVALID_BASE64_ENCODING_LENGTH, got %v", result.Code)
	}
}

func TestEscapeURIQuery(t *testing.T) {
	escaped, result := EscapeURIQuery("/v1/transactions:beginBudgetConsumption", "key=a b&other=c")
	if !result.Successful() {
		t.Fatalf("expected success, got %v", result)
	}
	if escaped == "" {
		t.Fatal("expected non-empty escaped URI")
	}
}

func TestEscapeURIQueryEmpty(t *testing.T) {
	escaped, result := EscapeURIQuery("/path", "")
	if !result.Successful() || escaped != "/path" {
		t.Fatalf("expected path unchanged with no query, got %q, %v", escaped, result)
	}
}
