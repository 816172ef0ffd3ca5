package sizing

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// NormalizeKey maps a broker symbol onto a registry key:
// upper case, broker suffix after '.' dropped, separators removed.
//
//	"eur/usd" -> "EURUSD", "XAUUSD.r" -> "XAUUSD", "us_100" -> "US100"
func NormalizeKey(symbol string) string {
	s := strings.TrimSpace(symbol)
	if i := strings.Index(s, "."); i > 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// Registry maps normalized instrument keys to sizing policies.
// It is populated once at configuration time; lookups never guess.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
	aliases  map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]Policy),
		aliases:  make(map[string]string),
	}
}

// Register validates and stores a policy under its normalized key together
// with its aliases. Nothing is stored unless the policy and every alias are
// accepted.
func (r *Registry) Register(p Policy, aliases ...string) error {
	if err := p.Validate(); err != nil {
		return err
	}
	key := NormalizeKey(p.Key)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePolicy, key)
	}
	if _, exists := r.aliases[key]; exists {
		return fmt.Errorf("%w: %s is already an alias", ErrDuplicatePolicy, key)
	}

	normalized := make([]string, 0, len(aliases))
	for _, alias := range aliases {
		a := NormalizeKey(alias)
		if a == "" {
			return fmt.Errorf("%w: empty alias %q for %s", ErrInvalidPolicy, alias, key)
		}
		if a == key {
			// "EURUSD.pro" already normalizes onto EURUSD
			continue
		}
		if _, ok := r.policies[a]; ok {
			return fmt.Errorf("%w: alias %s shadows a policy", ErrDuplicatePolicy, a)
		}
		if target, ok := r.aliases[a]; ok {
			return fmt.Errorf("%w: alias %s already targets %s", ErrDuplicatePolicy, a, target)
		}
		normalized = append(normalized, a)
	}

	p.Key = key
	r.policies[key] = p
	for _, a := range normalized {
		r.aliases[a] = key
	}
	return nil
}

// Resolve returns the registry key a symbol maps to
func (r *Registry) Resolve(symbol string) (string, error) {
	key := NormalizeKey(symbol)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[key]; ok {
		key = target
	}
	if _, ok := r.policies[key]; !ok {
		return "", fmt.Errorf("%w: %q (key %s)", ErrUnconfiguredInstrument, symbol, key)
	}
	return key, nil
}

// Lookup returns the policy for a symbol
func (r *Registry) Lookup(symbol string) (Policy, error) {
	key, err := r.Resolve(symbol)
	if err != nil {
		return Policy{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[key], nil
}

// Keys returns registered keys in sorted order
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.policies))
	for k := range r.policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
