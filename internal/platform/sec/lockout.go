// Copyright (c) 2026 Townhub. All rights reserved.

package sec

// # Brute-Force Lockout

// LockoutThreshold is the number of failed authentication attempts within
// the tracking window after which an identity is locked out.
const LockoutThreshold = 5

// IsLockedOut decides whether an identity is locked out given its failed
// attempt count inside the current tracking window.
//
// The function is a pure decision over a caller-supplied counter: persisting
// the counter, expiring the window, and resetting on successful auth are the
// caller's responsibility (see the iam attempt repository). Keeping this
// side-effect-free makes the policy trivially testable.
func IsLockedOut(failedAttempts int) bool {
	return failedAttempts >= LockoutThreshold
}
