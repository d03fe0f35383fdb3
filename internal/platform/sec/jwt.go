// Copyright (c) 2026 Townhub. All rights reserved.

/*
Package sec provides the cryptographic primitives of the authentication core:
password hashing and acceptance policy, signed token issuance/verification,
the authorization engine, CSRF double-submit validation, and the brute-force
lockout decision.

# Architecture

This package isolates security-sensitive code from the domain logic. It acts
as an Infrastructure service injected into the Application layer. It holds no
mutable state of its own — sessions, ledgers, and counters live in external
stores owned by the iam layer.
*/
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/townhubhq/townhub/internal/platform/config"
	"github.com/townhubhq/townhub/pkg/uuid"
)

// # Verification Failures

var (
	// ErrTokenInvalid covers signature mismatch, unexpected algorithm,
	// wrong issuer/audience, structural malformation, missing claims, and
	// token-type confusion. Callers must re-authenticate.
	ErrTokenInvalid = errors.New("sec: token is invalid")

	// ErrTokenExpired means the token was correctly signed and well formed
	// but is past its expiry. Callers holding a refresh token may attempt a
	// silent refresh instead of re-authenticating.
	ErrTokenExpired = errors.New("sec: token has expired")
)

// # Token Types

const (
	// TokenTypeAccess marks short-lived bearer credentials.
	TokenTypeAccess = "access"

	// TokenTypeRefresh marks the long-lived rotation credentials. Every
	// refresh token MUST carry this marker plus a unique jti; verification
	// rejects anything else (type-confusion defense).
	TokenTypeRefresh = "refresh"
)

// AccessClaims is the payload embedded inside an access token.
//
// # Why custom claims?
//
// By embedding the email and role directly inside the token, request
// middleware can reconstruct the active user context WITHOUT querying the
// database on every single API request.
type AccessClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the payload small.
	Email     string `json:"eml"`
	Role      string `json:"rol"`
	TokenType string `json:"token_type"`
}

// RefreshClaims is the payload embedded inside a refresh token.
//
// The jti lives in RegisteredClaims.ID and is the single-use consumption key
// of the refresh ledger. Refresh tokens deliberately carry no profile data.
type RefreshClaims struct {
	jwt.RegisteredClaims

	TokenType string `json:"token_type"`
}

// TokenPair is the result of issuing credentials for an authenticated user.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	RefreshJTI       string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// # Token Service

// TokenService issues and verifies HS256-signed access and refresh tokens.
//
// Access and refresh tokens are signed with DISTINCT secrets: compromise of
// the access secret does not allow minting refresh tokens, and vice versa.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenService creates a new TokenService.
//
// Both secrets must meet the minimum length and must differ from each other;
// misconfiguration here is a startup failure, never a runtime one.
func NewTokenService(accessSecret, refreshSecret, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(accessSecret) < config.MinSigningSecretLength || len(refreshSecret) < config.MinSigningSecretLength {
		return nil, fmt.Errorf("sec: signing secrets must be at least %d bytes", config.MinSigningSecretLength)
	}
	if accessSecret == refreshSecret {
		return nil, fmt.Errorf("sec: access and refresh signing secrets must differ")
	}
	if issuer == "" || audience == "" {
		return nil, fmt.Errorf("sec: token issuer and audience are required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("sec: token lifetimes must be positive")
	}

	return &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		issuer:        issuer,
		audience:      audience,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

/*
IssuePair creates a fresh access/refresh token pair for an authenticated user.

Description: The access token carries the profile claims needed by request
middleware; the refresh token carries only identity plus a unique jti, which
the caller must persist as a refresh-ledger entry before releasing the pair.

Parameters:
  - userID: Subject identity id
  - email: Account email (access token only)
  - role: Account role (access token only)

Returns:
  - *TokenPair: Signed tokens plus the refresh jti and both expiries
  - error: Signing failures
*/
func (service *TokenService) IssuePair(userID, email, role string) (*TokenPair, error) {
	now := time.Now()
	accessExpiry := now.Add(service.accessTTL)
	refreshExpiry := now.Add(service.refreshTTL)

	accessClaims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    service.issuer,
			Audience:  jwt.ClaimStrings{service.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExpiry),
		},
		Email:     email,
		Role:      role,
		TokenType: TokenTypeAccess,
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(service.accessSecret)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to sign access token: %w", err)
	}

	// The jti doubles as the ledger primary key; UUIDv7 keeps the ledger
	// index time-ordered.
	jti := uuid.New()

	refreshClaims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    service.issuer,
			Audience:  jwt.ClaimStrings{service.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(refreshExpiry),
		},
		TokenType: TokenTypeRefresh,
	}

	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(service.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshJTI:       jti,
		AccessExpiresAt:  accessExpiry,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

/*
VerifyAccess checks the signature and validity of an access token string.

Description: Rejects signature mismatch, any algorithm other than HS256
(including "none"), wrong issuer, wrong audience, structural malformation,
and refresh tokens presented as access tokens. Expiry is surfaced as the
distinct [ErrTokenExpired].

Parameters:
  - tokenString: Raw compact JWT (three dot-separated base64url segments)

Returns:
  - *AccessClaims: Verified claims (only fields present in the payload)
  - error: ErrTokenExpired or ErrTokenInvalid
*/
func (service *TokenService) VerifyAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{},
		func(t *jwt.Token) (any, error) { return service.accessSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithAudience(service.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	// Strict presence checks: a token missing an expected field fails
	// verification instead of yielding zero-valued claims downstream.
	if claims.Subject == "" || claims.Email == "" || claims.Role == "" {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

/*
VerifyRefresh checks the signature and validity of a refresh token string.

Description: Applies the same signature/issuer/audience/structure rules as
[VerifyAccess] but against the refresh secret, and additionally requires the
"refresh" token-type marker and a non-empty jti. An access token presented
here fails twice over — wrong secret and wrong type marker.

Parameters:
  - tokenString: Raw compact JWT

Returns:
  - *RefreshClaims: Verified claims including the jti
  - error: ErrTokenExpired or ErrTokenInvalid
*/
func (service *TokenService) VerifyRefresh(tokenString string) (*RefreshClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RefreshClaims{},
		func(t *jwt.Token) (any, error) { return service.refreshSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithAudience(service.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := token.Claims.(*RefreshClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// classifyParseError maps golang-jwt parse failures onto the two failure
// classes the rest of the system distinguishes.
//
// Expiry is only reported as such when the signature already checked out;
// a tampered token that is ALSO expired must read as invalid.
func classifyParseError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenMalformed) {
		return ErrTokenInvalid
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return ErrTokenInvalid
}
