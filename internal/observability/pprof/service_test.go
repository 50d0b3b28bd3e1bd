package pprof

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWithTokenGuard(t *testing.T) {
	t.Parallel()

	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	h := withToken("s3cret", ok)

	cases := []struct {
		name   string
		setup  func(*http.Request)
		status int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"wrong query token", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "nope")
			r.URL.RawQuery = q.Encode()
		}, http.StatusUnauthorized},
		{"query token", func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", "s3cret")
			r.URL.RawQuery = q.Encode()
		}, http.StatusOK},
		{"bearer token", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer s3cret")
		}, http.StatusOK},
		{"wrong bearer", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer nope")
		}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}

	// Without a token the guard is transparent.
	open := withToken("  ", ok)
	rec := httptest.NewRecorder()
	open(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("open guard status = %d", rec.Code)
	}
}

func TestIsLoopback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:6060", true},
		{"localhost:6060", true},
		{"[::1]:6060", true},
		{"0.0.0.0:6060", false},
		{"10.0.0.5:6060", false},
		{":6060", false},
		{"garbage", false},
	}
	for _, tc := range cases {
		if got := isLoopback(tc.addr); got != tc.want {
			t.Fatalf("isLoopback(%q) = %v, want %v", tc.addr, got, tc.want)
		}
	}
}
