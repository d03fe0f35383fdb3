// Copyright (c) 2026 Townhub. All rights reserved.

/*
Service layer for the identity and access management (IAM) system.

It handles everything from user registration and secure password hashing to
session lifecycle management via rotated JWT pairs backed by the single-use
refresh ledger.

Architecture:

  - Service: Orchestrates business logic (Register, Login, Refresh, Revocation).
  - Repository: Abstracted interfaces for Postgres (Users, Sessions, Ledger)
    and Redis (failed-login counters).
  - Security: Leverages bcrypt hashing and dual-secret HS256 JWTs.

The package ensures that identity data remains consistent and secure throughout
the platform's lifecycle.
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/dberr"
	"github.com/townhubhq/townhub/internal/platform/sec"
	"github.com/townhubhq/townhub/pkg/uuid"
)

// # Contracts & Types

// TokenManager defines the contract for issuing and verifying token pairs.
//
// # Why an interface?
//
// The concrete [sec.TokenService] is deterministic crypto; the interface
// exists so service tests can observe and control issued pairs.
type TokenManager interface {
	// IssuePair mints a fresh access/refresh token pair for the user.
	IssuePair(userID, email, role string) (*sec.TokenPair, error)

	// VerifyRefresh validates a refresh token's signature and shape.
	VerifyRefresh(tokenString string) (*sec.RefreshClaims, error)
}

// Service implements user authentication use cases.
//
// # Review Process
//
// This service is critical for security. Any changes to hashing, rotation,
// or login logic must be reviewed by the security team.
type Service struct {
	userRepository    UserRepository
	sessionRepository SessionRepository
	ledgerRepository  LedgerRepository
	attemptRepository AttemptRepository
	ownershipResolver OwnershipResolver
	tokenManager      TokenManager
	bcryptCost        int
	lockoutWindow     time.Duration
}

// NewService constructs a new [Service] with necessary dependencies.
func NewService(
	userRepo UserRepository,
	sessionRepo SessionRepository,
	ledgerRepo LedgerRepository,
	attemptRepo AttemptRepository,
	ownership OwnershipResolver,
	tokens TokenManager,
	bcryptCost int,
	lockoutWindow time.Duration,
) *Service {
	return &Service{
		userRepository:    userRepo,
		sessionRepository: sessionRepo,
		ledgerRepository:  ledgerRepo,
		attemptRepository: attemptRepo,
		ownershipResolver: ownership,
		tokenManager:      tokens,
		bcryptCost:        bcryptCost,
		lockoutWindow:     lockoutWindow,
	}
}

// # Registration Flow

// RegisterInput holds the data required to enroll a new member.
type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
}

/*
Register validates, hashes, and persists a brand new user account.

Description: Deep-enrollment of a new member, handling password hashing and
default role assignment. The password policy is checked here as well as at the
transport layer, so a password that bcrypt would refuse (over 72 bytes) can
never reach the hasher through any caller.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *User: Created entity
  - error: ValidationError, Conflict (if identity exists), or storage errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*User, error) {
	email := normalizeEmail(input.Email)

	if err := checkPasswordPolicy(input.Password); err != nil {
		return nil, err
	}

	// Verify email uniqueness up front for the common case. A repository
	// outage here is NOT evidence the email is free.
	_, err := service.userRepository.FindByEmail(context, email)
	if err == nil {
		return nil, apperr.Conflict("Email is already registered")
	}
	if !errors.Is(err, dberr.ErrNotFound) {
		return nil, fmt.Errorf("auth_service_email_lookup_failed: %w", err)
	}

	// Prevent storing plain-text passwords. The cost factor is deployment
	// configuration so registration spikes stay affordable.
	hashedPassword, err := sec.HashPasswordWithCost(input.Password, service.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth_service_hash_failed: %w", err)
	}

	// Construct the new User entity. Time-sortable ID to prevent PG index fragmentation.
	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  input.DisplayName,
		Role:         sec.RoleMember,
		IsActive:     true,
	}

	// Persist the user. Two requests can pass the lookup above with the same
	// email; the partial unique index decides the race and the loser gets the
	// same Conflict as the sequential case.
	if err := service.userRepository.Create(context, user); err != nil {
		if errors.Is(err, dberr.ErrConflict) {
			return nil, apperr.Conflict("Email is already registered")
		}
		return nil, fmt.Errorf("auth_service_register_failed: %w", err)
	}

	return user, nil
}

// # Authentication Flow

// LoginInput defines credentials for an authentication attempt.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginSession represents a successfully established user session.
type LoginSession struct {
	AccessToken      string
	RefreshToken     string
	CSRFToken        string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	User             *User
}

/*
Login validates user credentials and issues a rotated token pair.

Description: Enforces the brute-force lockout BEFORE verifying anything,
performs constant-time password comparison, opens a new session family, and
records the first refresh token in the ledger.

Every failure mode a caller can distinguish (unknown email, wrong password,
deactivated account) collapses into one generic INVALID_CREDENTIALS response
to prevent account enumeration.

Parameters:
  - context: context.Context
  - input: LoginInput

Returns:
  - *LoginSession: Transport-ready session credentials
  - error: InvalidCredentials, RateLimited, or internal failures
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginSession, error) {
	email := normalizeEmail(input.Email)

	// Lockout gate. The counter is shared across handlers via Redis, so the
	// gate holds no matter how many instances serve the endpoint.
	failures, err := service.attemptRepository.Count(context, email)
	if err != nil {
		return nil, fmt.Errorf("auth_service_lockout_check_failed: %w", err)
	}
	if sec.IsLockedOut(int(failures)) {
		return nil, apperr.RateLimited(int(service.lockoutWindow.Seconds()))
	}

	// Look up the account. Generic message to prevent enumeration.
	user, err := service.userRepository.FindByEmail(context, email)
	if err != nil {
		service.recordFailure(context, email)
		return nil, apperr.InvalidCredentials()
	}

	// A deactivated account is indistinguishable from a wrong password.
	if !user.IsActive {
		service.recordFailure(context, email)
		return nil, apperr.InvalidCredentials()
	}

	// Verify password hash using bcrypt's constant-time comparison to prevent timing attacks
	if !sec.CheckPasswordHash(input.Password, user.PasswordHash) {
		service.recordFailure(context, email)
		return nil, apperr.InvalidCredentials()
	}

	// Successful authentication clears the failure counter.
	if err := service.attemptRepository.Reset(context, email); err != nil {
		return nil, fmt.Errorf("auth_service_lockout_reset_failed: %w", err)
	}

	return service.openSession(context, user, input.UserAgent, input.IPAddress)
}

// openSession mints a token pair, opens a new session family, and records
// the first ledger entry.
func (service *Service) openSession(context context.Context, user *User, userAgent, ipAddress string) (*LoginSession, error) {

	// Generate the access/refresh pair
	pair, err := service.tokenManager.IssuePair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_issue_failed: %w", err)
	}

	// The tracking session and its founding ledger entry are persisted as one
	// unit, so a failure here leaves nothing behind. The session's ExpiresAt
	// is an ABSOLUTE cap: rotation never extends it.
	session := &Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		UserAgent: userAgent,
		IPAddress: ipAddress,
		ExpiresAt: pair.RefreshExpiresAt,
		IsRevoked: false,
	}

	root := &LedgerEntry{
		JTI:       pair.RefreshJTI,
		UserID:    user.ID,
		SessionID: session.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: pair.RefreshExpiresAt,
	}

	if err := service.ledgerRepository.OpenFamily(context, session, root); err != nil {
		return nil, fmt.Errorf("auth_service_session_creation_failed: %w", err)
	}

	// Issue a fresh CSRF token alongside the session cookies
	csrfToken, err := sec.NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("auth_service_csrf_issue_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		CSRFToken:        csrfToken,
		SessionID:        session.ID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             user,
	}, nil
}

// recordFailure increments the shared failed-login counter. Counter errors
// must not mask the credential failure the caller is about to return.
func (service *Service) recordFailure(context context.Context, email string) {
	_, _ = service.attemptRepository.Increment(context, email, service.lockoutWindow)
}

// # Session Rotation

/*
Refresh implements the refresh token rotation mechanism.

Description: Verifies the presented refresh token, atomically consumes its
ledger entry, and issues a fresh pair in the SAME session family. Presenting
an already-consumed token is treated as replay evidence: the entire family is
revoked in one transaction and the caller receives TOKEN_REUSE_DETECTED.

Under concurrent presentation of the same token, exactly one caller receives
a new pair; all others observe the reuse path.

Parameters:
  - context: context.Context
  - refreshToken: string
  - userAgent: string
  - ipAddress: string

Returns:
  - *LoginSession: Rotated session credentials
  - error: TokenInvalid, TokenExpired, TokenReuseDetected, or storage failures
*/
func (service *Service) Refresh(context context.Context, refreshToken, userAgent, ipAddress string) (*LoginSession, error) {

	// Cryptographic verification before any storage round trip
	claims, err := service.tokenManager.VerifyRefresh(refreshToken)
	if err != nil {
		if errors.Is(err, sec.ErrTokenExpired) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.TokenInvalid()
	}

	// Fetch the user for the fresh access token's claims
	user, err := service.userRepository.FindByID(context, claims.Subject)
	if err != nil {
		return nil, apperr.TokenInvalid()
	}
	if !user.IsActive {
		return nil, apperr.TokenInvalid()
	}

	// Mint the successor pair up front. If the rotation below loses a race,
	// this pair's jti never reaches the ledger and is therefore unusable.
	pair, err := service.tokenManager.IssuePair(user.ID, user.Email, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("auth_service_token_issue_failed: %w", err)
	}

	next := &LedgerEntry{
		JTI:       pair.RefreshJTI,
		UserID:    user.ID,
		IssuedAt:  time.Now(),
		ExpiresAt: pair.RefreshExpiresAt,
	}

	consumed, err := service.ledgerRepository.Rotate(context, claims.ID, next)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenConsumed):
			// Replay evidence. Rotate has already revoked the token's whole
			// family in the same transaction, so reporting reuse here never
			// claims a revocation that didn't happen.
			return nil, apperr.TokenReuseDetected()

		case errors.Is(err, ErrLedgerNotFound), errors.Is(err, ErrSessionInactive):
			return nil, apperr.TokenInvalid()

		default:
			return nil, fmt.Errorf("auth_service_rotation_failed: %w", err)
		}
	}

	// Rotate the CSRF token together with the session cookies
	csrfToken, err := sec.NewCSRFToken()
	if err != nil {
		return nil, fmt.Errorf("auth_service_csrf_issue_failed: %w", err)
	}

	return &LoginSession{
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		CSRFToken:        csrfToken,
		SessionID:        consumed.SessionID,
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             user,
	}, nil
}

/*
Logout permanently revokes the caller's session family.

Description: Idempotent by design — an unknown or already-revoked token still
results in a successful logout from the caller's point of view.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Revocation failures
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {

	// An unparseable token means there is nothing left to revoke.
	claims, err := service.tokenManager.VerifyRefresh(refreshToken)
	if err != nil {
		return nil
	}

	entry, err := service.ledgerRepository.FindByJTI(context, claims.ID)
	if err != nil {
		return nil
	}

	if err := service.ledgerRepository.RevokeFamily(context, entry.SessionID, ReasonLogout); err != nil {
		return fmt.Errorf("auth_service_logout_failed: %w", err)
	}

	return nil
}

// # Session Management

/*
ListSessions returns the target user's active sessions.

Description: A user may always inspect their own sessions. Inspecting someone
else's requires at least the admin role.

Parameters:
  - context: context.Context
  - actor: *sec.AccessClaims (The authenticated caller)
  - targetUserID: string

Returns:
  - []*Session: Active sessions, most recently seen first
  - error: Forbidden or retrieval failures
*/
func (service *Service) ListSessions(context context.Context, actor *sec.AccessClaims, targetUserID string) ([]*Session, error) {
	if !canManageUser(actor, targetUserID) {
		return nil, apperr.Forbidden("Cannot inspect another user's sessions")
	}

	return service.sessionRepository.ListActiveByUser(context, targetUserID)
}

/*
RevokeSession revokes one session family by its ID.

Description: Owners may revoke their own sessions (remote logout of a lost
device); admins may revoke anyone's. The revocation reason records which of
the two happened.

Parameters:
  - context: context.Context
  - actor: *sec.AccessClaims
  - sessionID: string

Returns:
  - error: NotFound, Forbidden, or revocation failures
*/
func (service *Service) RevokeSession(context context.Context, actor *sec.AccessClaims, sessionID string) error {
	session, err := service.sessionRepository.FindByID(context, sessionID)
	if err != nil {
		return err
	}

	if !canManageUser(actor, session.UserID) {
		return apperr.Forbidden("Cannot revoke another user's session")
	}

	reason := ReasonLogout
	if actor.Subject != session.UserID {
		reason = ReasonAdmin
	}

	if err := service.ledgerRepository.RevokeFamily(context, sessionID, reason); err != nil {
		return fmt.Errorf("auth_service_revoke_session_failed: %w", err)
	}

	return nil
}

/*
RevokeAllSessions revokes every active session family of the target user.

Description: When a user revokes their own sessions, the session they are
calling from can be spared via exceptSessionID (pass "" to spare none).

Parameters:
  - context: context.Context
  - actor: *sec.AccessClaims
  - targetUserID: string
  - exceptSessionID: string

Returns:
  - error: Forbidden or revocation failures
*/
func (service *Service) RevokeAllSessions(context context.Context, actor *sec.AccessClaims, targetUserID, exceptSessionID string) error {
	if !canManageUser(actor, targetUserID) {
		return apperr.Forbidden("Cannot revoke another user's sessions")
	}

	reason := ReasonLogout
	if actor.Subject != targetUserID {
		reason = ReasonAdmin
	}

	if err := service.ledgerRepository.RevokeAllFamilies(context, targetUserID, reason, exceptSessionID); err != nil {
		return fmt.Errorf("auth_service_revoke_all_failed: %w", err)
	}

	return nil
}

/*
ChangePassword allows an authenticated user to update their credentials.

Description: Verifies the current password, stores the new hash, and revokes
every OTHER session family so stolen refresh tokens die with the old password.
The caller's own session survives.

Parameters:
  - context: context.Context
  - userID: string
  - currentPassword: string
  - newPassword: string
  - currentRefreshToken: string

Returns:
  - error: ValidationError, Unauthorized, or storage failures
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword, currentRefreshToken string) error {

	if err := checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	// Fetch user by ID
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return err
	}

	// Verify the current password before allowing change
	if !sec.CheckPasswordHash(currentPassword, user.PasswordHash) {
		return apperr.Unauthorized("Current password is incorrect")
	}

	// Hash the brand new password
	hashedPassword, err := sec.HashPasswordWithCost(newPassword, service.bcryptCost)
	if err != nil {
		return fmt.Errorf("auth_service_change_password_hash_failed: %w", err)
	}

	// Update the database with the new hash
	if err := service.userRepository.UpdatePassword(context, userID, hashedPassword); err != nil {
		return fmt.Errorf("auth_service_change_password_update_failed: %w", err)
	}

	// Security side effect: revoke all other families to force re-login on
	// other devices. The caller's session is located via their refresh token.
	exceptSessionID := ""
	if claims, verifyErr := service.tokenManager.VerifyRefresh(currentRefreshToken); verifyErr == nil {
		if entry, findErr := service.ledgerRepository.FindByJTI(context, claims.ID); findErr == nil {
			exceptSessionID = entry.SessionID
		}
	}

	if err := service.ledgerRepository.RevokeAllFamilies(context, userID, ReasonLogout, exceptSessionID); err != nil {
		return fmt.Errorf("auth_service_change_password_revoke_failed: %w", err)
	}

	return nil
}

// # Principal Resolution

/*
ResolvePrincipal builds the authorization view of a user.

Description: Combines the account's role and explicit permission grants with
the directory resources the user owns, producing the [sec.Principal] consumed
by the authorization engine.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - *sec.Principal: Authorization-ready identity view
  - error: NotFound or resolution failures
*/
func (service *Service) ResolvePrincipal(context context.Context, userID string) (*sec.Principal, error) {
	user, err := service.userRepository.FindByID(context, userID)
	if err != nil {
		return nil, err
	}

	owned, err := service.ownershipResolver.OwnedResourceIDs(context, userID)
	if err != nil {
		return nil, fmt.Errorf("auth_service_ownership_resolution_failed: %w", err)
	}

	return &sec.Principal{
		ID:             user.ID,
		Role:           user.Role,
		Permissions:    user.Permissions,
		OwnedResources: owned,
	}, nil
}

// # Helpers

// canManageUser reports whether the actor may manage the target's sessions.
func canManageUser(actor *sec.AccessClaims, targetUserID string) bool {
	if actor == nil {
		return false
	}
	if actor.Subject == targetUserID {
		return true
	}
	return sec.Role(actor.Role).AtLeast(sec.RoleAdmin)
}

// normalizeEmail canonicalizes an email for lookups and counter keys.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPasswordPolicy converts unmet policy rules into a client-safe
// validation error, one field error per rule.
func checkPasswordPolicy(password string) error {
	unmet := sec.CheckPasswordPolicy(password)
	if len(unmet) == 0 {
		return nil
	}

	details := make([]apperr.FieldError, 0, len(unmet))
	for _, rule := range unmet {
		details = append(details, apperr.FieldError{Field: FieldPassword, Message: rule})
	}
	return apperr.ValidationError("Password does not meet the policy", details...)
}
