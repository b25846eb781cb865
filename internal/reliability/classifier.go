package reliability

import "strconv"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// StatusClass buckets an upstream HTTP status for metric labels.
func StatusClass(code int) string {
	switch {
	case code == 429:
		return "rate_limited"
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	case code <= 0:
		return "transport"
	default:
		return strconv.Itoa(code/100) + "xx"
	}
}

// RetryableLabel renders a retryable flag as a metric label value.
func RetryableLabel(retryable bool) string {
	if retryable {
		return "true"
	}
	return "false"
}
