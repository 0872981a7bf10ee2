// Package ttl bounds and interprets message lifetimes.
package ttl

import (
	"time"

	"comply/internal/model"
)

// Provider-imposed TTL bounds in seconds.
const (
	Min     int64 = 30      // 30 seconds
	Max     int64 = 1209600 // 14 days
	Default int64 = 86400   // 24 hours
)

// Normalize converts a TTL value to seconds. It accepts plain integers
// ("3600") and duration strings with an h/m/s suffix ("2h", "30m", "45s").
// An unrecognized suffix falls back to the leading integer as raw seconds.
// Returns -1 when no leading integer is present.
func Normalize(ttl model.TTL) int64 {
	s := string(ttl)
	n, width := leadingInt(s)
	if width == 0 {
		return -1
	}
	if width == len(s) {
		return n
	}
	switch s[len(s)-1] {
	case 'h', 'H':
		return n * 3600
	case 'm', 'M':
		return n * 60
	case 's', 'S':
		return n
	default:
		return n
	}
}

// Validate reports whether the TTL normalizes into the allowed range.
func Validate(ttl model.TTL) bool {
	sec := Normalize(ttl)
	return sec >= Min && sec <= Max
}

// ExpiryTime returns the moment a message queued now becomes undeliverable.
func ExpiryTime(ttl model.TTL, now time.Time) time.Time {
	return now.Add(time.Duration(Normalize(ttl)) * time.Second)
}

// Remaining returns the whole seconds left before expiry, floored at zero.
func Remaining(expiry, now time.Time) int64 {
	left := int64(expiry.Sub(now) / time.Second)
	if left < 0 {
		return 0
	}
	return left
}

// RecommendedDefault returns the suggested TTL in seconds for a message
// category: one hour for transactional, a day for promotional, thirty
// minutes for session traffic.
func RecommendedDefault(category string) int64 {
	switch category {
	case model.CategoryTransactional:
		return 3600
	case model.CategoryPromotional:
		return 86400
	case model.CategorySession:
		return 1800
	default:
		return Default
	}
}

func leadingInt(s string) (n int64, width int) {
	neg := false
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	if i == start {
		return 0, 0
	}
	if neg {
		n = -n
	}
	return n, i
}
