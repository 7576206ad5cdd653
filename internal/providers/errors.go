package providers

import (
	"net/http"
	"strings"
)

// extractHTTPStatus pulls an HTTP status code out of an SDK error message.
// The SDKs flatten responses into strings, so matching is the only option.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	errStr := err.Error()
	for _, probe := range []struct {
		needle string
		status int
	}{
		{"429", http.StatusTooManyRequests},
		{"500", http.StatusInternalServerError},
		{"502", http.StatusBadGateway},
		{"503", http.StatusServiceUnavailable},
		{"504", http.StatusGatewayTimeout},
		{"401", http.StatusUnauthorized},
		{"403", http.StatusForbidden},
		{"400", http.StatusBadRequest},
		{"402", http.StatusPaymentRequired},
	} {
		if strings.Contains(errStr, probe.needle) {
			return probe.status
		}
	}
	return 0
}
