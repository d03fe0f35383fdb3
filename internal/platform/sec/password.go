// Copyright (c) 2026 Townhub. All rights reserved.

package sec

import (
	"strings"
	"unicode"
)

// # Password Acceptance Policy

const (
	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength = 8

	// PasswordMaxLength is the maximum accepted password length in BYTES.
	// bcrypt refuses inputs longer than 72 bytes, so anything above this
	// must be rejected as a policy violation before it ever reaches the
	// hasher.
	PasswordMaxLength = 72

	// PasswordSymbols is the fixed set of characters that satisfy the
	// "at least one symbol" rule.
	PasswordSymbols = "!@#$%^&*()-_=+[]{};:,.<>?/|~"
)

// Human-readable descriptions for each policy rule. Returned verbatim to
// clients so the UI can surface actionable feedback.
const (
	RuleMinLength = "must be at least 8 characters long"
	RuleMaxLength = "must be at most 72 bytes long"
	RuleUppercase = "must contain at least one uppercase letter"
	RuleLowercase = "must contain at least one lowercase letter"
	RuleDigit     = "must contain at least one digit"
	RuleSymbol    = "must contain at least one symbol (" + PasswordSymbols + ")"
)

// CheckPasswordPolicy validates a candidate password against the acceptance
// policy BEFORE it is ever hashed.
//
// It returns the precise list of unmet rules — not a bare boolean — so the
// caller can tell the user exactly what to fix. An empty slice means the
// password is acceptable.
func CheckPasswordPolicy(password string) []string {
	var unmet []string

	if len(password) < PasswordMinLength {
		unmet = append(unmet, RuleMinLength)
	}
	if len(password) > PasswordMaxLength {
		unmet = append(unmet, RuleMaxLength)
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasUpper {
		unmet = append(unmet, RuleUppercase)
	}
	if !hasLower {
		unmet = append(unmet, RuleLowercase)
	}
	if !hasDigit {
		unmet = append(unmet, RuleDigit)
	}
	if !hasSymbol {
		unmet = append(unmet, RuleSymbol)
	}

	return unmet
}
