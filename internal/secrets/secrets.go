// Package secrets resolves SECRET:NAME references against a secret store
// at run time. The default store is the process environment; tests inject
// a static resolver. Resolved values must never reach logs or raw-page
// sidecars.
package secrets

import (
	"fmt"
	"os"
	"strings"
)

// Prefix marks a string as a secret reference.
const Prefix = "SECRET:"

// Resolver resolves a secret name to its value.
type Resolver interface {
	Resolve(name string) (string, error)
}

// EnvResolver resolves secrets from the process environment.
type EnvResolver struct{}

// NewEnvResolver creates the default environment-backed resolver.
func NewEnvResolver() *EnvResolver {
	return &EnvResolver{}
}

// Resolve looks the name up in the environment.
func (r *EnvResolver) Resolve(name string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", fmt.Errorf("secret %q not set", name)
	}
	return val, nil
}

// StaticResolver resolves secrets from a fixed map. Test use only.
type StaticResolver map[string]string

// Resolve looks the name up in the map.
func (r StaticResolver) Resolve(name string) (string, error) {
	val, ok := r[name]
	if !ok {
		return "", fmt.Errorf("secret %q not set", name)
	}
	return val, nil
}

// IsRef reports whether a value is a SECRET:NAME reference.
func IsRef(value string) bool {
	return strings.HasPrefix(value, Prefix) && len(value) > len(Prefix)
}

// RefName extracts the secret name from a reference, or "" for non-refs.
func RefName(value string) string {
	if !IsRef(value) {
		return ""
	}
	return value[len(Prefix):]
}

// Expand resolves a value that may be a secret reference. Plain values
// pass through unchanged.
func Expand(r Resolver, value string) (string, error) {
	if !IsRef(value) {
		return value, nil
	}
	resolved, err := r.Resolve(RefName(value))
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", value, err)
	}
	return resolved, nil
}

// MissingRefs returns the names of all secret references in values that
// fail to resolve. Used by the source test probe to report
// missing_secrets before a run is allowed.
func MissingRefs(r Resolver, values ...string) []string {
	var missing []string
	for _, value := range values {
		if !IsRef(value) {
			continue
		}
		name := RefName(value)
		if _, err := r.Resolve(name); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}
