// Package cors evaluates stored CORS rules against incoming preflight and
// actual requests. Rules are stored per account in the service properties and
// evaluated in order: the first rule whose origin, method, and requested
// headers all match wins.
package cors

import "strings"

// Rule is a single stored CORS rule. The origin, method, and header fields
// hold comma-separated lists, matching the REST representation.
type Rule struct {
	AllowedOrigins  string `json:"allowedOrigins"`
	AllowedMethods  string `json:"allowedMethods"`
	AllowedHeaders  string `json:"allowedHeaders"`
	ExposedHeaders  string `json:"exposedHeaders"`
	MaxAgeInSeconds int32  `json:"maxAgeInSeconds"`
}

// Request describes the preflight (or actual) request being matched.
type Request struct {
	Origin         string
	Method         string
	RequestHeaders []string
}

// Result is the policy emitted by the first matching rule.
type Result struct {
	AllowedOrigin    string
	AllowedMethods   string
	AllowedHeaders   string
	ExposedHeaders   string
	MaxAgeInSeconds  int32
	AllowCredentials bool
}

// Match evaluates rules in order and returns the policy of the first rule
// matching the request, or nil when no rule matches.
func Match(rules []Rule, req Request) *Result {
	for _, rule := range rules {
		if !originMatches(rule.AllowedOrigins, req.Origin) {
			continue
		}
		if !methodMatches(rule.AllowedMethods, req.Method) {
			continue
		}
		if !headersMatch(rule.AllowedHeaders, req.RequestHeaders) {
			continue
		}
		return &Result{
			AllowedOrigin:   req.Origin,
			AllowedMethods:  rule.AllowedMethods,
			AllowedHeaders:  rule.AllowedHeaders,
			ExposedHeaders:  rule.ExposedHeaders,
			MaxAgeInSeconds: rule.MaxAgeInSeconds,
			// Credentials are allowed unless the rule is a wildcard-origin rule.
			AllowCredentials: strings.TrimSpace(rule.AllowedOrigins) != "*",
		}
	}
	return nil
}

func split(list string) []string {
	parts := strings.Split(list, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func originMatches(allowedOrigins, origin string) bool {
	for _, allowed := range split(allowedOrigins) {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func methodMatches(allowedMethods, method string) bool {
	for _, allowed := range split(allowedMethods) {
		if strings.EqualFold(allowed, method) {
			return true
		}
	}
	return false
}

// headersMatch requires every requested header to match some allowed pattern.
// A pattern ending in "*" matches by case-insensitive prefix.
func headersMatch(allowedHeaders string, requested []string) bool {
	if len(requested) == 0 {
		return true
	}
	allowed := split(allowedHeaders)
	for _, header := range requested {
		if !headerMatches(allowed, header) {
			return false
		}
	}
	return true
}

func headerMatches(allowed []string, header string) bool {
	for _, pattern := range allowed {
		if pattern == "*" {
			return true
		}
		if strings.HasSuffix(pattern, "*") {
			prefix := pattern[:len(pattern)-1]
			if len(header) >= len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
				return true
			}
			continue
		}
		if strings.EqualFold(pattern, header) {
			return true
		}
	}
	return false
}
