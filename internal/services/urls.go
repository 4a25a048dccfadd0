package services

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is used when no API base is configured. It is relative, like the proxied path the
// browser app was served with, and is resolved against the development origin before use.
const DefaultBaseURL = "/api"

// ChatStreamPath is the endpoint of the streaming chat API, relative to the base URL.
const ChatStreamPath = "/chat/stream"

// JoinURL joins base and path with exactly one slash between them.
func JoinURL(base, path string) string {
	base = strings.TrimSuffix(base, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// ResolveBaseURL returns the absolute base URL for backend requests. An empty base falls back to
// DefaultBaseURL, and a relative base is resolved against origin.
func ResolveBaseURL(base, origin string) (string, error) {
	if base == "" {
		base = DefaultBaseURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", base, err)
	}
	if u.IsAbs() {
		return base, nil
	}

	if origin == "" {
		return "", fmt.Errorf("api url %q is relative and no origin is configured", base)
	}
	o, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if !o.IsAbs() {
		return "", fmt.Errorf("origin %q must be absolute", origin)
	}

	// Joined rather than resolved so a path on the origin is kept.
	return JoinURL(strings.TrimSuffix(o.String(), "/"), u.String()), nil
}
