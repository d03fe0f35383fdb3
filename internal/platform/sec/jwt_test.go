// Copyright (c) 2026 Townhub. All rights reserved.

package sec_test

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townhubhq/townhub/internal/platform/sec"
)

const (
	testAccessSecret  = "test-access-secret-0123456789abcdef"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef"
	testIssuer        = "townhub.test"
	testAudience      = "townhub-api-test"
)

// newTestTokenService builds a service with sane test lifetimes.
func newTestTokenService(t *testing.T, accessTTL, refreshTTL time.Duration) *sec.TokenService {
	t.Helper()
	service, err := sec.NewTokenService(testAccessSecret, testRefreshSecret, testIssuer, testAudience, accessTTL, refreshTTL)
	require.NoError(t, err)
	return service
}

/*
TestNewTokenService_Validation ensures misconfiguration is a construction failure.
*/
func TestNewTokenService_Validation(t *testing.T) {
	tests := []struct {
		name          string
		accessSecret  string
		refreshSecret string
		issuer        string
		audience      string
	}{
		{"short_access_secret", "short", testRefreshSecret, testIssuer, testAudience},
		{"short_refresh_secret", testAccessSecret, "short", testIssuer, testAudience},
		{"identical_secrets", testAccessSecret, testAccessSecret, testIssuer, testAudience},
		{"missing_issuer", testAccessSecret, testRefreshSecret, "", testAudience},
		{"missing_audience", testAccessSecret, testRefreshSecret, testIssuer, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sec.NewTokenService(tt.accessSecret, tt.refreshSecret, tt.issuer, tt.audience, time.Minute, time.Hour)
			assert.Error(t, err)
		})
	}
}

/*
TestIssuePair_Roundtrip verifies that issued tokens recover the identity
fields they were issued with.
*/
func TestIssuePair_Roundtrip(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	pair, err := service.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)
	require.NotEmpty(t, pair.RefreshJTI)

	// Access token carries the full profile claims.
	accessClaims, err := service.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-id-1", accessClaims.Subject)
	assert.Equal(t, "alice@example.com", accessClaims.Email)
	assert.Equal(t, "member", accessClaims.Role)

	// Refresh token carries identity plus the ledger jti.
	refreshClaims, err := service.VerifyRefresh(pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "user-id-1", refreshClaims.Subject)
	assert.Equal(t, pair.RefreshJTI, refreshClaims.ID)

	// Two pairs for the same identity never share a jti.
	second, err := service.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshJTI, second.RefreshJTI)
}

/*
TestVerifyAccess_Expired checks that expiry surfaces as the distinct
ErrTokenExpired, not generic invalidity.
*/
func TestVerifyAccess_Expired(t *testing.T) {
	service := newTestTokenService(t, time.Nanosecond, 24*time.Hour)

	pair, err := service.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = service.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, sec.ErrTokenExpired)
}

/*
TestVerify_TamperedSegments mutates a byte in every token segment and
expects verification to fail each time.
*/
func TestVerify_TamperedSegments(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	pair, err := service.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)

	segments := strings.Split(pair.AccessToken, ".")
	require.Len(t, segments, 3)

	names := []string{"header", "claims", "signature"}
	for i, name := range names {
		t.Run("tampered_"+name, func(t *testing.T) {
			mutated := make([]string, 3)
			copy(mutated, segments)
			mutated[i] = flipByte(mutated[i])

			_, err := service.VerifyAccess(strings.Join(mutated, "."))
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}

// flipByte replaces the first character of a base64url segment with a
// different alphabet character.
func flipByte(segment string) string {
	replacement := byte('A')
	if segment[0] == 'A' {
		replacement = 'B'
	}
	return string(replacement) + segment[1:]
}

/*
TestVerify_Malformed covers structurally broken token strings.
*/
func TestVerify_Malformed(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"single_segment", "garbage"},
		{"two_segments", "aaaa.bbbb"},
		{"four_segments", "aa.bb.cc.dd"},
		{"invalid_encoding", "££.§§.¶¶"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.VerifyAccess(tt.token)
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)

			_, err = service.VerifyRefresh(tt.token)
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}

/*
TestVerify_WrongIssuerOrAudience ensures tokens minted for another service
deployment are rejected even with the same secrets.
*/
func TestVerify_WrongIssuerOrAudience(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	otherIssuer, err := sec.NewTokenService(testAccessSecret, testRefreshSecret, "evil.example", testAudience, 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	otherAudience, err := sec.NewTokenService(testAccessSecret, testRefreshSecret, testIssuer, "other-api", 15*time.Minute, 24*time.Hour)
	require.NoError(t, err)

	pairIssuer, err := otherIssuer.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)
	_, err = service.VerifyAccess(pairIssuer.AccessToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)

	pairAudience, err := otherAudience.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)
	_, err = service.VerifyAccess(pairAudience.AccessToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestVerify_NoneAlgorithm rejects unsigned tokens outright.
*/
func TestVerify_NoneAlgorithm(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	claims := sec.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-id-1",
			Issuer:    testIssuer,
			Audience:  jwt.ClaimStrings{testAudience},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Email:     "alice@example.com",
		Role:      "member",
		TokenType: sec.TokenTypeAccess,
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = service.VerifyAccess(unsigned)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestVerify_TypeConfusion ensures an access token is never accepted where a
refresh token is expected, and vice versa.
*/
func TestVerify_TypeConfusion(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	pair, err := service.IssuePair("user-id-1", "alice@example.com", "member")
	require.NoError(t, err)

	_, err = service.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)

	_, err = service.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, sec.ErrTokenInvalid)
}

/*
TestVerifyRefresh_MissingClaims hand-crafts refresh-shaped tokens lacking
the jti or the type marker; both must fail verification.
*/
func TestVerifyRefresh_MissingClaims(t *testing.T) {
	service := newTestTokenService(t, 15*time.Minute, 24*time.Hour)

	base := jwt.RegisteredClaims{
		Subject:   "user-id-1",
		Issuer:    testIssuer,
		Audience:  jwt.ClaimStrings{testAudience},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}

	tests := []struct {
		name   string
		claims sec.RefreshClaims
	}{
		{"missing_jti", sec.RefreshClaims{RegisteredClaims: base, TokenType: sec.TokenTypeRefresh}},
		{"missing_token_type", func() sec.RefreshClaims {
			withID := base
			withID.ID = "jti-1"
			return sec.RefreshClaims{RegisteredClaims: withID}
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tt.claims).SignedString([]byte(testRefreshSecret))
			require.NoError(t, err)

			_, err = service.VerifyRefresh(signed)
			assert.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}
