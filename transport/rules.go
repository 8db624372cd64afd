package transport

import (
	"net/http"
	"strings"
)

// Rule marks requests matching Method (empty matches any) and path Prefix as
// public. Paths are relative to the API base URL.
type Rule struct {
	Method string
	Prefix string
}

// DefaultPublicRules lists the endpoints evaluated anonymously by the
// storefront backend.
func DefaultPublicRules() []Rule {
	return []Rule{
		{Method: http.MethodPost, Prefix: "/auth/login"},
		{Method: http.MethodPost, Prefix: "/auth/register"},
		{Method: http.MethodPost, Prefix: "/auth/send-otp"},
		{Method: http.MethodPost, Prefix: "/auth/verify-otp"},
		{Method: http.MethodPost, Prefix: "/auth/mfa/verify"},
		{Method: http.MethodPost, Prefix: "/auth/refresh"},
		{Method: http.MethodPost, Prefix: "/auth/forgot-password"},
		{Method: http.MethodPost, Prefix: "/auth/reset-password"},
		{Method: http.MethodPost, Prefix: "/auth/qr/generate"},
		{Method: http.MethodGet, Prefix: "/auth/qr/status"},
		{Method: http.MethodPost, Prefix: "/auth/qr/confirm"},
		{Method: http.MethodGet, Prefix: "/products"},
		{Method: http.MethodGet, Prefix: "/categories"},
		{Method: http.MethodGet, Prefix: "/search"},
	}
}

// Classifier reports whether a request targets a public endpoint.
type Classifier struct {
	basePath string
	rules    []Rule
}

// NewClassifier strips basePath from request paths before matching rules.
func NewClassifier(basePath string, rules []Rule) *Classifier {
	return &Classifier{
		basePath: strings.TrimRight(basePath, "/"),
		rules:    append([]Rule(nil), rules...),
	}
}

func (c *Classifier) IsPublic(method, path string) bool {
	if method == http.MethodOptions {
		return true
	}
	rel := path
	if c.basePath != "" {
		if !strings.HasPrefix(path, c.basePath) {
			return false
		}
		rel = path[len(c.basePath):]
	}
	for _, r := range c.rules {
		if r.Method != "" && r.Method != method {
			continue
		}
		if hasPathPrefix(rel, r.Prefix) {
			return true
		}
	}
	return false
}

// hasPathPrefix matches whole segments: "/products" matches "/products/1"
// but not "/productsx".
func hasPathPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) || strings.HasSuffix(prefix, "/") {
		return true
	}
	return path[len(prefix)] == '/'
}
