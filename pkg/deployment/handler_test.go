package deployment

import (
	"net/http/httptest"
	"testing"
)

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	got := splitCSV(" netlify ,, vercel")
	want := []string{"netlify", "vercel"}
	if len(got) != len(want) {
		t.Fatalf("splitCSV length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitCSV[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitCSVEmptyInput(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Errorf("splitCSV(\"\") = %v, want nil", got)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest("POST", "/deploy", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.RemoteAddr = "10.0.0.1:54321"

	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP = %q, want %q", got, "203.0.113.9")
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("POST", "/deploy", nil)
	req.RemoteAddr = "10.0.0.1:54321"

	if got := clientIP(req); got != "10.0.0.1:54321" {
		t.Errorf("clientIP = %q, want %q", got, "10.0.0.1:54321")
	}
}
