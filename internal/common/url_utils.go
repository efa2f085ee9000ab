package common

import (
	"fmt"
	"net/url"
	"strings"
)

// ApplyScheme rewrites baseURL to https or http and drops any trailing slash
func ApplyScheme(baseURL string, useHTTPS bool) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: missing host", baseURL)
	}

	if useHTTPS {
		parsed.Scheme = "https"
	} else {
		parsed.Scheme = "http"
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	return parsed.String(), nil
}
