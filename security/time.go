package security

import "time"

// IsTokenExpiredWithMargin reports whether a token expiring at expiresAt must
// no longer be used at now. A token is valid iff now < expiresAt - margin.
// A zero expiresAt means the provider announced no lifetime; such tokens never
// expire locally.
func IsTokenExpiredWithMargin(expiresAt, now time.Time, margin time.Duration) bool {
	if expiresAt.IsZero() {
		return false // No expiration
	}
	if margin < 0 {
		margin = 0
	}
	return !now.Before(expiresAt.Add(-margin))
}

