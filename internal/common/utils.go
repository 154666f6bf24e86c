package common

import "strings"

// HasAny reports whether s contains any of subs.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// HasAnyFold is HasAny ignoring ASCII case. subs must be lower case.
func HasAnyFold(s string, subs ...string) bool {
	return HasAny(strings.ToLower(s), subs...)
}

