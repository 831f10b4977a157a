// Package secret resolves API-key secret references for authenticated sources.
package secret

import (
	"fmt"
	"os"
	"strings"
)

// Resolver resolves a secret reference to its value. An empty value with a
// nil error means the reference exists but holds nothing; callers treat both
// the same way and skip key injection.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// ResolverFunc is a function adapter for Resolver.
type ResolverFunc func(ref string) (string, error)

func (f ResolverFunc) Resolve(ref string) (string, error) {
	return f(ref)
}

// EnvResolver resolves secret references from environment variables. The
// reference is upper-cased and non-alphanumeric runes become underscores, so
// the reference "api-key/newsfeed" reads from API_KEY_NEWSFEED.
type EnvResolver struct {
	Prefix string // Optional prefix prepended to every variable name
}

func (r EnvResolver) Resolve(ref string) (string, error) {
	name := r.Prefix + envName(ref)
	value, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("secret %q not found (env %s)", ref, name)
	}
	return value, nil
}

func envName(ref string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// Static is a fixed ref-to-value map, used in tests and single-tenant setups.
type Static map[string]string

func (s Static) Resolve(ref string) (string, error) {
	value, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("secret %q not found", ref)
	}
	return value, nil
}
