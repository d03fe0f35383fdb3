// Copyright (c) 2026 Townhub. All rights reserved.

// Package middleware provides the HTTP middleware chain for the Townhub API server.
//
// # Architecture
//
// Middleware intercepts incoming HTTP requests to apply global policies
// before they reach the domain handlers. This includes cross-cutting concerns
// like Logging, AuthZ/AuthN, Rate Limiting, CSRF, and CORS.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/constants"
	"github.com/townhubhq/townhub/internal/platform/ctxkey"
	"github.com/townhubhq/townhub/internal/platform/respond"
	"github.com/townhubhq/townhub/internal/platform/sec"
)

// AccessVerifier defines the interface needed to verify access tokens in middleware.
//
// # Why an interface?
//
// Defining AccessVerifier here decouples the middleware from the `auth` service
// implementation, allowing us to easily inject mocks during unit testing.
type AccessVerifier interface {
	VerifyAccess(tokenStr string) (*sec.AccessClaims, error)
}

// Authenticate extracts and verifies the JWT from the Authorization header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If present, parse and verify the JWT via [AccessVerifier].
//  4. Inject [*sec.AccessClaims] into the request context for downstream use.
//
// Expired tokens are reported distinctly from invalid ones so that API
// clients can trigger a silent refresh instead of forcing a re-login.
//
// # Parameters
//   - verifier: The AccessVerifier instance.
//
// # Returns
//   - An [http.Handler] middleware.
func Authenticate(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get("Authorization")

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.TokenInvalid())
				return
			}

			// ── 3. Token Verification ─────────────────────────────────────────
			tokenStr := parts[1]
			claims, err := verifier.VerifyAccess(tokenStr)
			if err != nil {
				if errors.Is(err, sec.ErrTokenExpired) {
					respond.Error(writer, request, apperr.TokenExpired())
					return
				}
				respond.Error(writer, request, apperr.TokenInvalid())
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := context.WithValue(request.Context(), ctxkey.KeyUser, claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
//
// # Flow
//  1. Check if [*sec.AccessClaims] exists in context.
//  2. If missing, abort with HTTP 401 Unauthorized.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := GetUser(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated user doesn't have the required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically implies
// [RequireAuth] so you don't need to mount both.
//
// # Flow
//  1. Check if [*sec.AccessClaims] exists in context (implies AuthN).
//  2. Check if the user's role meets or exceeds the required target role using [sec.Role.AtLeast].
//  3. If insufficient, abort with HTTP 403 Forbidden.
func RequireRole(role sec.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := GetUser(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			userRole := sec.Role(claims.Role)
			if !userRole.AtLeast(role) {
				respond.Error(writer, request, apperr.Forbidden("Insufficient permissions"))
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}

// CSRFGuard enforces double-submit CSRF validation on state-changing requests.
//
// # Flow
//  1. Safe methods (GET, HEAD, OPTIONS) pass through untouched.
//  2. The csrf_token cookie must be present on state-changing requests.
//  3. The X-CSRF-Token header must match the cookie value exactly
//     (constant-time comparison inside [sec.ValidateCSRF]).
//
// The cookie is deliberately readable by JavaScript: the guarantee comes
// from the attacker's inability to READ the cookie cross-origin, not from
// hiding it.
func CSRFGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {

		// ── 1. Method Check ───────────────────────────────────────────────
		if !sec.CSRFRequired(request.Method) {
			next.ServeHTTP(writer, request)
			return
		}

		// ── 2. Cookie Presence ────────────────────────────────────────────
		cookie, err := request.Cookie(constants.CSRFTokenCookieName)
		if err != nil || cookie.Value == "" {
			respond.Error(writer, request, apperr.Forbidden("Missing CSRF token"))
			return
		}

		// ── 3. Double-Submit Comparison ───────────────────────────────────
		headerToken := request.Header.Get(constants.HeaderCSRFToken)
		if !sec.ValidateCSRF(headerToken, cookie.Value) {
			respond.Error(writer, request, apperr.Forbidden("Invalid CSRF token"))
			return
		}

		next.ServeHTTP(writer, request)
	})
}

// GetUser retrieves the [*sec.AccessClaims] from the [context.Context].
//
// # Returns
//   - A pointer to [*sec.AccessClaims] if the user is authenticated.
//   - nil if the user is anonymous.
func GetUser(ctx context.Context) *sec.AccessClaims {
	claims, ok := ctx.Value(ctxkey.KeyUser).(*sec.AccessClaims)
	if !ok {
		return nil
	}
	return claims
}
