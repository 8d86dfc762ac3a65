package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"kokorod/internal/service"
)

func withTrustedProxies(t *testing.T, entries ...string) {
	t.Helper()
	if err := SetTrustedProxies(entries); err != nil { t.Fatalf("trusted proxies: %v", err) }
	t.Cleanup(func() { _ = SetTrustedProxies(nil) })
}

func keyFor(remoteAddr string, headers map[string]string) string {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return service.ClientKey(clientAddr(req))
}

func TestClientAddr_UntrustedPeerIgnoresHeaders(t *testing.T) {
	withTrustedProxies(t)
	for _, h := range []map[string]string{
		{"X-Forwarded-For": "203.0.113.7"},
		{"X-Forwarded-For": "203.0.113.8, 203.0.113.9"},
		{"X-Real-IP": "203.0.113.10"},
	} {
		if got := keyFor("198.51.100.9:4000", h); got != "198.51.100.9" { t.Fatalf("headers %v: key=%q", h, got) }
	}
}

func TestClientAddr_PeerOutsideTrustedRange(t *testing.T) {
	withTrustedProxies(t, "10.0.0.0/8")
	if got := keyFor("198.51.100.9:4000", map[string]string{"X-Forwarded-For": "203.0.113.7"}); got != "198.51.100.9" { t.Fatalf("key=%q", got) }
}

func TestClientAddr_TrustedProxy(t *testing.T) {
	withTrustedProxies(t, "10.0.0.0/8", "192.0.2.1")
	// rightmost untrusted hop wins; a client-supplied leftmost entry is ignored
	if got := keyFor("10.0.0.5:1234", map[string]string{"X-Forwarded-For": "203.0.113.99, 203.0.113.7, 10.0.0.6"}); got != "203.0.113.7" { t.Fatalf("key=%q", got) }
	if got := keyFor("192.0.2.1:1234", map[string]string{"X-Real-IP": "203.0.113.5"}); got != "203.0.113.5" { t.Fatalf("key=%q", got) }
	if got := keyFor("10.0.0.5:1234", map[string]string{"X-Forwarded-For": "10.0.0.7"}); got != "10.0.0.5" { t.Fatalf("all-trusted chain: key=%q", got) }
	if got := keyFor("10.0.0.5:1234", map[string]string{"X-Forwarded-For": "garbage, 203.0.113.7"}); got != "203.0.113.7" { t.Fatalf("key=%q", got) }
	if got := keyFor("10.0.0.5:1234", map[string]string{"X-Forwarded-For": "203.0.113.7, garbage"}); got != "10.0.0.5" { t.Fatalf("unparsable hop: key=%q", got) }
	if got := keyFor("10.0.0.5:1234", nil); got != "10.0.0.5" { t.Fatalf("no headers: key=%q", got) }
}

func TestSetTrustedProxies_RejectsBadEntry(t *testing.T) {
	t.Cleanup(func() { _ = SetTrustedProxies(nil) })
	if err := SetTrustedProxies([]string{"10.0.0.0/8", "not-an-ip"}); err == nil { t.Fatalf("expected error") }
	if err := SetTrustedProxies([]string{"10.0.0.0/99"}); err == nil { t.Fatalf("expected error for bad prefix") }
	if err := SetTrustedProxies([]string{" ", "::1"}); err != nil { t.Fatalf("unexpected: %v", err) }
	if len(trustedProxies) != 1 { t.Fatalf("proxies=%v", trustedProxies) }
}
