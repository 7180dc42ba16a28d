package core

import (
	"slices"
	"strings"
)

const keySeparator = "-"

// DeriveKey returns the conversation key shared by two usernames.
// DeriveKey(a, b) == DeriveKey(b, a).
func DeriveKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + keySeparator + b
}

// NormalizeKey re-sorts the components of a caller-supplied key so that
// "bob-alice" and "alice-bob" resolve to the same channel. Registered
// usernames never contain the separator, so a derived key has two parts.
func NormalizeKey(key string) string {
	parts := strings.Split(key, keySeparator)
	slices.Sort(parts)
	return strings.Join(parts, keySeparator)
}
