// Copyright (c) 2026 Townhub. All rights reserved.

package sec

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
)

// # CSRF Double-Submit Guard

const (
	// csrfTokenBytes is the entropy of a generated CSRF token.
	csrfTokenBytes = 32

	// maxCSRFTokenLength bounds incoming header/cookie values before any
	// character inspection.
	maxCSRFTokenLength = 128
)

// NewCSRFToken generates a random CSRF token, base64url-encoded.
//
// The token is delivered to the client in a JavaScript-readable cookie at
// login (scoped to the session lifetime) and must be echoed back in the
// X-CSRF-Token header on every state-changing request.
func NewCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("sec: failed to generate CSRF token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CSRFRequired reports whether the HTTP method needs CSRF validation.
// Read-only methods are exempt; everything state-changing is covered.
func CSRFRequired(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

/*
ValidateCSRF validates a double-submit token pair.

Description: Both values must be present, syntactically clean, and equal.
"Clean" means the base64url alphabet only — a line break or NUL byte in
either value is a header/cookie injection attempt and fails immediately.
Equality uses a constant-time comparison so the timing of a rejection does
not reveal the position of the first mismatching byte.

Parameters:
  - headerToken: Value echoed by the client in the X-CSRF-Token header
  - cookieToken: Value the server associated with the session via cookie

Returns:
  - bool: true only on exact, clean equality
*/
func ValidateCSRF(headerToken, cookieToken string) bool {
	if !csrfTokenClean(headerToken) || !csrfTokenClean(cookieToken) {
		return false
	}

	// Lengths are public information (both sides are server-issued), so
	// the early-out on mismatched length leaks nothing useful.
	if len(headerToken) != len(cookieToken) {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) == 1
}

// csrfTokenClean reports whether the value is non-empty, bounded, and made
// exclusively of base64url characters.
func csrfTokenClean(value string) bool {
	if value == "" || len(value) > maxCSRFTokenLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
