// Package orderkey generates fractional-index order keys: short
// base-62 strings compared lexicographically, with the property that
// a new key can always be generated strictly between two existing
// neighbours by extending the string.
package orderkey

import (
	"errors"
	"fmt"
	"strings"
)

// digits is the key alphabet in ASCII (and therefore lexicographic)
// order.
const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const base = len(digits)

// ErrExhausted reports that no key exists between the given
// neighbours. Callers hitting this have passed equal or reversed
// keys, which indicates duplicate sibling keys in the database.
var ErrExhausted = errors.New("order key space exhausted between neighbours")

// Calculate returns a key strictly between before and after. A nil
// argument means "no neighbour on that side": (nil, nil) yields the
// initial key, (nil, k) a key sorting below k, (k, nil) a key sorting
// above k.
func Calculate(before, after *string) (string, error) {
	switch {
	case before == nil && after == nil:
		return string(digits[base/2]), nil
	case before == nil:
		if err := validate(*after); err != nil {
			return "", err
		}
		return midpoint("", *after), nil
	case after == nil:
		if err := validate(*before); err != nil {
			return "", err
		}
		return keyAfter(*before), nil
	default:
		if err := validate(*before); err != nil {
			return "", err
		}
		if err := validate(*after); err != nil {
			return "", err
		}
		if *before >= *after {
			return "", fmt.Errorf("no key between %q and %q: %w", *before, *after, ErrExhausted)
		}
		return midpoint(*before, *after), nil
	}
}

// validate rejects keys that break the bisection invariants: empty
// keys, characters outside the alphabet, and trailing minimum digits
// (a key ending in '0' has no room below it at that length).
func validate(key string) error {
	if key == "" {
		return fmt.Errorf("empty order key: %w", ErrExhausted)
	}
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(digits, key[i]) < 0 {
			return fmt.Errorf("order key %q has invalid character %q: %w", key, key[i], ErrExhausted)
		}
	}
	if key[len(key)-1] == digits[0] {
		return fmt.Errorf("order key %q ends in minimum digit: %w", key, ErrExhausted)
	}
	return nil
}

// midpoint returns a key strictly between a and b, where a < b
// lexicographically. An empty a means "below everything"; an empty b
// means "above everything". The result never ends in the minimum
// digit, so there is always room below it later.
func midpoint(a, b string) string {
	if b != "" {
		// Strip the longest common prefix and bisect the remainder.
		n := 0
		for n < len(a) && n < len(b) && a[n] == b[n] {
			n++
		}
		if n > 0 {
			return b[:n] + midpoint(a[n:], b[n:])
		}
	}

	da := 0
	if a != "" {
		da = strings.IndexByte(digits, a[0])
	}
	db := base
	if b != "" {
		db = strings.IndexByte(digits, b[0])
	}

	if db-da > 1 {
		return string(digits[(da+db)/2])
	}

	// Consecutive leading digits: descend one level.
	if len(a) > 1 {
		return a[:1] + midpoint(a[1:], "")
	}
	rest := ""
	if b != "" {
		rest = b[1:]
	}
	return string(digits[da]) + midpoint("", rest)
}

// keyAfter returns the shortest key sorting above k: the first
// non-maximum digit is incremented and the tail dropped. When k is
// all maximum digits the key is extended instead.
func keyAfter(k string) string {
	for i := 0; i < len(k); i++ {
		if k[i] != digits[base-1] {
			d := strings.IndexByte(digits, k[i])
			return k[:i] + string(digits[d+1])
		}
	}
	return k + string(digits[base/2])
}
