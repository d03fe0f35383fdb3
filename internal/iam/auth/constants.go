// Copyright (c) 2026 Townhub. All rights reserved.

package auth

// # Consumption & Revocation Reasons
//
// The reason vocabulary is CLOSED. Every consumed ledger entry and every
// revoked session carries exactly one of these markers so that a security
// review can reconstruct why a token chain ended.
const (
	// ReasonRotated marks the normal case: the token was exchanged for its successor.
	ReasonRotated = "rotated"

	// ReasonReused marks replay evidence: a consumed token was presented again.
	ReasonReused = "reused"

	// ReasonLogout marks a voluntary end of session by the user.
	ReasonLogout = "logout"

	// ReasonAdmin marks a revocation forced by an administrator.
	ReasonAdmin = "admin"

	// ReasonExpired marks entries cleaned up after their natural expiry.
	ReasonExpired = "expired"
)
