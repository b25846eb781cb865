package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestStatusClass(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{0, "transport"},
		{302, "3xx"},
		{400, "client_error"},
		{429, "rate_limited"},
		{502, "server_error"},
	}
	for _, tc := range cases {
		if got := StatusClass(tc.code); got != tc.want {
			t.Fatalf("StatusClass(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}
