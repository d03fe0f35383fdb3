// Copyright (c) 2026 Townhub. All rights reserved.

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Security: Token issuer/audience and cookie configuration.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "townhub-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle,
	// including every session/ledger store round trip it performs.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in issued tokens.
	AuthIssuer = "townhub.app"

	// AuthAudience is the standard 'aud' claim in issued tokens.
	AuthAudience = "townhub-api"

	// RefreshTokenCookieName is the name of the HttpOnly cookie that carries
	// the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath scopes the refresh cookie to the auth endpoints
	// so it is never attached to ordinary API traffic.
	RefreshTokenCookiePath = "/api/v1/auth"

	// CSRFTokenCookieName is the name of the JavaScript-readable cookie used
	// for double-submit CSRF validation. The client echoes its value in the
	// HeaderCSRFToken header on every state-changing request.
	CSRFTokenCookieName = "csrf_token"

	// HeaderCSRFToken is the request header carrying the echoed CSRF token.
	HeaderCSRFToken = "X-CSRF-Token"
)

// # Standard Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
)

// # Database Schemas

const (
	SchemaIAM       = "iam"
	SchemaDirectory = "directory"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	// RedisPrefixFailedLogins keys the per-identity failed login counter.
	// Stored in Redis (not process memory) so every concurrent handler
	// observes one consistent counter.
	RedisPrefixFailedLogins = "auth:failed_logins:"
)
