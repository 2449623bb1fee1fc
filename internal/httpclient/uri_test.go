package httpclient

import "testing"

func TestParseURIDefaultsPortByScheme(t *testing.T) {
	p, result := ParseURI("https://pbs.example.com/v1/transactions:begin?alpha=1")
	if !result.Successful() {
		t.Fatalf("expected success, got %v", result)
	}
	if p.Scheme != "https" || p.Host != "pbs.example.com" || p.Service != "443" {
		t.Fatalf("unexpected parse: %+v", p)
	}
	if p.Path != "/v1/transactions:begin" || p.Query != "alpha=1" {
		t.Fatalf("unexpected path/query: %+v", p)
	}

	p2, result2 := ParseURI("http://pbs.example.com/v1")
	if !result2.Successful() {
		t.Fatalf("expected success, got %v", result2)
	}
	if p2.Service != "80" {
		t.Fatalf("expected default http port 80, got %q", p2.Service)
	}
}

func TestParseURIKeepsExplicitPort(t *testing.T) {
	p, result := ParseURI("https://pbs.example.com:8443/v1")
	if !result.Successful() {
		t.Fatalf("expected success, got %v", result)
	}
	if p.Service != "8443" {
		t.Fatalf("expected port 8443, got %q", p.Service)
	}
}

func TestParseURIRejectsUnsupportedScheme(t *testing.T) {
	_, result := ParseURI("ftp://pbs.example.com/v1")
	if result.Successful() {
		t.Fatalf("expected failure for ftp scheme")
	}
}

func TestParseURIRejectsMissingHost(t *testing.T) {
	_, result := ParseURI("https:///v1")
	if result.Successful() {
		t.Fatalf("expected failure for missing host")
	}
}

func TestParseURIRejectsMalformed(t *testing.T) {
	_, result := ParseURI("http://%zz")
	if result.Successful() {
		t.Fatalf("expected failure for malformed uri")
	}
}
