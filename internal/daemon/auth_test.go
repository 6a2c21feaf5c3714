package daemon

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestMetricsMiddlewareAllowlist(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	allow := []netip.Prefix{netip.MustParsePrefix("127.0.0.0/8"), netip.MustParsePrefix("10.1.0.0/16")}
	handler := metricsMiddleware(allow, "secret", ok)

	cases := []struct {
		name   string
		remote string
		bearer string
		want   int
	}{
		{name: "loopback", remote: "127.0.0.1:5000", want: http.StatusOK},
		{name: "mapped loopback", remote: "[::ffff:127.0.0.1]:5000", want: http.StatusOK},
		{name: "lan prefix", remote: "10.1.4.9:5000", want: http.StatusOK},
		{name: "outside", remote: "192.0.2.10:5000", want: http.StatusForbidden},
		{name: "outside with token", remote: "192.0.2.10:5000", bearer: "secret", want: http.StatusOK},
		{name: "outside with wrong token", remote: "192.0.2.10:5000", bearer: "nope", want: http.StatusForbidden},
		{name: "unparseable peer", remote: "somewhere", want: http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			req.RemoteAddr = tc.remote
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestMetricsMiddlewareIgnoresForwardedFor(t *testing.T) {
	handler := metricsMiddleware([]netip.Prefix{netip.MustParsePrefix("127.0.0.1/32")}, "", http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	req.Header.Set("X-Forwarded-For", "127.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
