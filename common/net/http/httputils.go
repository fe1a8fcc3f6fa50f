package http

import (
	"net/http"
	"strconv"
	"strings"
)

// QueryHeader carries parsed pagination parameters from a list endpoint's query string.
type QueryHeader struct {
	Limit int
	Page  int
}

// ValidateParameters parses a map of query parameters into a QueryHeader, defaulting
// limit to 10 and page to 1 when absent or malformed.
func ValidateParameters(params map[string]string) *QueryHeader {
	limit := 10
	page := 1

	for key, value := range params {
		switch {
		case strings.Contains(key, "limit"):
			if v, err := strconv.Atoi(value); err == nil {
				limit = v
			}
		case strings.Contains(key, "page"):
			if v, err := strconv.Atoi(value); err == nil {
				page = v
			}
		}
	}

	return &QueryHeader{Limit: limit, Page: page}
}

// IPAddrFromRemoteAddr removes port information from string.
func IPAddrFromRemoteAddr(s string) string {
	idx := strings.LastIndex(s, ":")
	if idx == -1 {
		return s
	}

	return s[:idx]
}

// GetRemoteAddress returns IP address of the client making the request.
// It checks for X-Real-Ip or X-Forwarded-For headers which is used by Proxies.
func GetRemoteAddress(r *http.Request) string {
	realIP := r.Header.Get(headerRealIP)
	forwardedFor := r.Header.Get(headerForwardedFor)

	if realIP == "" && forwardedFor == "" {
		return IPAddrFromRemoteAddr(r.RemoteAddr)
	}

	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}

		return parts[0]
	}

	return realIP
}
