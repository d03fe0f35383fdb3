// Copyright (c) 2026 Townhub. All rights reserved.

/*
Package auth implements the user identity and session security layer.

It defines the core domain entities (User, Session, LedgerEntry) and logic for
authentication, refresh-token rotation, and account lifecycle.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no external
dependencies and encapsulate all business rules related to user identity.
*/
package auth

import (
	"time"

	"github.com/townhubhq/townhub/internal/platform/sec"
)

// # Domain Entities

// User represents a registered member of the Townhub platform.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Explicitly omitted from JSON for security.
	DisplayName  string    `json:"display_name"`
	Role         sec.Role  `json:"role"`
	Permissions  []string  `json:"permissions,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session represents a login on one device. It is the FAMILY KEY of the
// refresh ledger: every refresh token minted by rotating within this login
// shares this session's ID, so revoking the session kills the entire chain.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	UserAgent     string    `json:"user_agent"`
	IPAddress     string    `json:"ip_address"`
	CreatedAt     time.Time `json:"created_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	IsRevoked     bool      `json:"is_revoked"`
	RevokedReason string    `json:"revoked_reason,omitempty"`
}

// LedgerEntry records one refresh token in the single-use ledger.
//
// A nil ConsumedAt means the token is still spendable. Consumption is
// PERMANENT: once set, the jti can never be spent again, and an attempt to
// spend it is treated as replay evidence against the whole session family.
type LedgerEntry struct {
	JTI        string     `json:"jti"`
	UserID     string     `json:"user_id"`
	SessionID  string     `json:"session_id"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// Spendable reports whether the entry can still be exchanged for a new pair.
func (entry *LedgerEntry) Spendable(now time.Time) bool {
	return entry.ConsumedAt == nil && now.Before(entry.ExpiresAt)
}

// # Field Identifiers

// Global field names for validation and identity mapping in the authentication domain.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldDisplayName     = "display_name"
	FieldCurrentPassword = "current_password"
	FieldNewPassword     = "new_password"
	FieldSessionID       = "session_id"
	FieldUserID          = "user_id"
	FieldAccessToken     = "access_token"
	FieldTokenType       = "token_type"
	FieldExpiresIn       = "expires_in"
	FieldCSRFToken       = "csrf_token"
	FieldUser            = "user"
	FieldMessage         = "message"
	FieldSessions        = "sessions"
)
