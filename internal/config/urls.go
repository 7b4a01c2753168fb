package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DefaultAPIURLPrefix is the production add-ons API
	DefaultAPIURLPrefix = "https://addons.mozilla.org/api/v3"
)

// ValidateAPIURLPrefix checks that prefix is an absolute http(s) URL.
// Plain http is only accepted for local hosts.
func ValidateAPIURLPrefix(prefix string) error {
	u, err := url.Parse(prefix)
	if err != nil {
		return fmt.Errorf("invalid API URL prefix %q: %w", prefix, err)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid API URL prefix %q: host is required", prefix)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host == "localhost" || host == "127.0.0.1" || host == "::1" || strings.HasSuffix(host, ".localhost") {
			return nil
		}
		return fmt.Errorf("invalid API URL prefix %q: plain http is only allowed for localhost", prefix)
	default:
		return fmt.Errorf("invalid API URL prefix %q: scheme must be https", prefix)
	}
}
