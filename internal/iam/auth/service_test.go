// Copyright (c) 2026 Townhub. All rights reserved.

package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/dberr"
	"github.com/townhubhq/townhub/internal/platform/sec"
)

// # In-Memory Fakes
//
// The fakes model the same contracts the Postgres and Redis repositories
// fulfill, including the atomic single-winner semantics of Rotate.

type memoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*User

	// findByEmailErr overrides FindByEmail entirely when set, standing in
	// for a repository outage or a lookup that raced a concurrent insert.
	findByEmailErr error
}

func newMemoryUserRepository() *memoryUserRepository {
	return &memoryUserRepository{users: make(map[string]*User)}
}

func (r *memoryUserRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, dberr.ErrNotFound
}

func (r *memoryUserRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findByEmailErr != nil {
		return nil, r.findByEmailErr
	}
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, dberr.ErrNotFound
}

func (r *memoryUserRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Same guarantee as the partial unique index on live emails.
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return dberr.ErrConflict
		}
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memoryUserRepository) UpdatePassword(_ context.Context, userID, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[userID]; ok {
		user.PasswordHash = newHash
	}
	return nil
}

type memorySessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemorySessionRepository() *memorySessionRepository {
	return &memorySessionRepository{sessions: make(map[string]*Session)}
}

func (r *memorySessionRepository) FindByID(_ context.Context, sessionID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		clone := *session
		return &clone, nil
	}
	return nil, apperr.NotFound("Session")
}

func (r *memorySessionRepository) ListActiveByUser(_ context.Context, userID string) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]*Session, 0)
	for _, session := range r.sessions {
		if session.UserID == userID && !session.IsRevoked && time.Now().Before(session.ExpiresAt) {
			clone := *session
			active = append(active, &clone)
		}
	}
	return active, nil
}

func (r *memorySessionRepository) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if !time.Now().Before(session.ExpiresAt) {
			delete(r.sessions, id)
		}
	}
	return nil
}

// memoryLedgerRepository shares the session map so Rotate can enforce the
// session-active check and RevokeFamily can flip both sides atomically.
type memoryLedgerRepository struct {
	mu       sync.Mutex
	entries  map[string]*LedgerEntry
	sessions *memorySessionRepository

	// Injectable failures for the paths the service must not swallow.
	openFamilyErr error
	revokeAllErr  error
}

func newMemoryLedgerRepository(sessions *memorySessionRepository) *memoryLedgerRepository {
	return &memoryLedgerRepository{
		entries:  make(map[string]*LedgerEntry),
		sessions: sessions,
	}
}

func (r *memoryLedgerRepository) OpenFamily(_ context.Context, session *Session, root *LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.openFamilyErr != nil {
		return r.openFamilyErr
	}

	sessionClone := *session
	if sessionClone.CreatedAt.IsZero() {
		sessionClone.CreatedAt = time.Now()
	}
	if sessionClone.LastSeenAt.IsZero() {
		sessionClone.LastSeenAt = sessionClone.CreatedAt
	}

	r.sessions.mu.Lock()
	r.sessions.sessions[session.ID] = &sessionClone
	r.sessions.mu.Unlock()

	rootClone := *root
	r.entries[root.JTI] = &rootClone
	return nil
}

func (r *memoryLedgerRepository) FindByJTI(_ context.Context, jti string) (*LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[jti]; ok {
		clone := *entry
		return &clone, nil
	}
	return nil, ErrLedgerNotFound
}

func (r *memoryLedgerRepository) Rotate(_ context.Context, jti string, next *LedgerEntry) (*LedgerEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[jti]
	if !ok {
		return nil, ErrLedgerNotFound
	}
	if entry.ConsumedAt != nil {
		// Replay evidence: the family dies before the error is reported,
		// matching the Postgres implementation's in-transaction revocation.
		r.revokeFamilyLocked(entry.SessionID, ReasonReused)
		return nil, ErrTokenConsumed
	}
	if !time.Now().Before(entry.ExpiresAt) {
		return nil, ErrLedgerNotFound
	}

	r.sessions.mu.Lock()
	session, sessionExists := r.sessions.sessions[entry.SessionID]
	inactive := !sessionExists || session.IsRevoked || !time.Now().Before(session.ExpiresAt)
	if !inactive {
		session.LastSeenAt = time.Now()
	}
	r.sessions.mu.Unlock()

	if inactive {
		return nil, ErrSessionInactive
	}

	now := time.Now()
	entry.ConsumedAt = &now
	entry.Reason = ReasonRotated

	successor := *next
	successor.SessionID = entry.SessionID
	r.entries[successor.JTI] = &successor

	clone := *entry
	return &clone, nil
}

func (r *memoryLedgerRepository) RevokeFamily(_ context.Context, sessionID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revokeFamilyLocked(sessionID, reason)
	return nil
}

// revokeFamilyLocked requires r.mu to be held.
func (r *memoryLedgerRepository) revokeFamilyLocked(sessionID, reason string) {
	r.sessions.mu.Lock()
	if session, ok := r.sessions.sessions[sessionID]; ok && !session.IsRevoked {
		session.IsRevoked = true
		session.RevokedReason = reason
	}
	r.sessions.mu.Unlock()

	now := time.Now()
	for _, entry := range r.entries {
		if entry.SessionID == sessionID && entry.ConsumedAt == nil {
			entry.ConsumedAt = &now
			entry.Reason = reason
		}
	}
}

func (r *memoryLedgerRepository) RevokeAllFamilies(_ context.Context, userID, reason, exceptSessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revokeAllErr != nil {
		return r.revokeAllErr
	}

	r.sessions.mu.Lock()
	for _, session := range r.sessions.sessions {
		if session.UserID == userID && !session.IsRevoked && session.ID != exceptSessionID {
			session.IsRevoked = true
			session.RevokedReason = reason
		}
	}
	r.sessions.mu.Unlock()

	now := time.Now()
	for _, entry := range r.entries {
		if entry.UserID == userID && entry.ConsumedAt == nil && entry.SessionID != exceptSessionID {
			entry.ConsumedAt = &now
			entry.Reason = reason
		}
	}
	return nil
}

func (r *memoryLedgerRepository) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for jti, entry := range r.entries {
		if !time.Now().Before(entry.ExpiresAt) {
			delete(r.entries, jti)
		}
	}
	return nil
}

type memoryAttemptRepository struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemoryAttemptRepository() *memoryAttemptRepository {
	return &memoryAttemptRepository{counts: make(map[string]int64)}
}

func (r *memoryAttemptRepository) Increment(_ context.Context, email string, _ time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[email]++
	return r.counts[email], nil
}

func (r *memoryAttemptRepository) Count(_ context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[email], nil
}

func (r *memoryAttemptRepository) Reset(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counts, email)
	return nil
}

type staticOwnershipResolver struct {
	owned map[string][]string
}

func (r *staticOwnershipResolver) OwnedResourceIDs(_ context.Context, userID string) ([]string, error) {
	return r.owned[userID], nil
}

// # Test Fixture

type serviceFixture struct {
	service  *Service
	users    *memoryUserRepository
	sessions *memorySessionRepository
	ledger   *memoryLedgerRepository
	attempts *memoryAttemptRepository
}

const (
	fixtureAccessSecret  = "unit-test-access-secret-0123456789ab"
	fixtureRefreshSecret = "unit-test-refresh-secret-0123456789a"
	fixturePassword      = "Sw0rdfish!Central"
)

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	tokens, err := sec.NewTokenService(
		fixtureAccessSecret,
		fixtureRefreshSecret,
		"townhub.test",
		"townhub-api-test",
		15*time.Minute,
		time.Hour,
	)
	require.NoError(t, err)

	users := newMemoryUserRepository()
	sessions := newMemorySessionRepository()
	ledger := newMemoryLedgerRepository(sessions)
	attempts := newMemoryAttemptRepository()
	ownership := &staticOwnershipResolver{owned: make(map[string][]string)}

	service := NewService(users, sessions, ledger, attempts, ownership, tokens, 4, 15*time.Minute)

	return &serviceFixture{
		service:  service,
		users:    users,
		sessions: sessions,
		ledger:   ledger,
		attempts: attempts,
	}
}

// registerUser enrolls a user through the real registration flow.
func (f *serviceFixture) registerUser(t *testing.T, email string) *User {
	t.Helper()

	user, err := f.service.Register(context.Background(), RegisterInput{
		Email:       email,
		Password:    fixturePassword,
		DisplayName: "Test User",
	})
	require.NoError(t, err)
	return user
}

// promote changes a registered user's role directly in the store and returns
// the updated user; the store holds clones, so pointers obtained before the
// promotion keep the old role.
func (f *serviceFixture) promote(userID string, role sec.Role) *User {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	f.users.users[userID].Role = role
	clone := *f.users.users[userID]
	return &clone
}

// login authenticates a registered user and returns the session.
func (f *serviceFixture) login(t *testing.T, email string) *LoginSession {
	t.Helper()

	session, err := f.service.Login(context.Background(), LoginInput{
		Email:     email,
		Password:  fixturePassword,
		UserAgent: "unit-test",
		IPAddress: "203.0.113.7",
	})
	require.NoError(t, err)
	return session
}

// claimsFor builds access claims matching a user for authorization checks.
func claimsFor(user *User) *sec.AccessClaims {
	claims := &sec.AccessClaims{
		Email: user.Email,
		Role:  string(user.Role),
	}
	claims.Subject = user.ID
	return claims
}

// # Registration

func TestService_Register(t *testing.T) {
	fixture := newServiceFixture(t)

	t.Run("creates_member_account", func(t *testing.T) {
		user := fixture.registerUser(t, "greta@example.com")

		assert.NotEmpty(t, user.ID)
		assert.Equal(t, sec.RoleMember, user.Role)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, fixturePassword, user.PasswordHash)
		assert.True(t, strings.HasPrefix(user.PasswordHash, "$2"))
	})

	t.Run("normalizes_email", func(t *testing.T) {
		user, err := fixture.service.Register(context.Background(), RegisterInput{
			Email:    "  Shouty@Example.COM ",
			Password: fixturePassword,
		})
		require.NoError(t, err)
		assert.Equal(t, "shouty@example.com", user.Email)
	})

	t.Run("duplicate_email_conflicts", func(t *testing.T) {
		_, err := fixture.service.Register(context.Background(), RegisterInput{
			Email:    "greta@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	})

	t.Run("oversized_password_never_reaches_the_hasher", func(t *testing.T) {
		// Policy-compliant except for length: bcrypt would refuse this input,
		// so it must come back as a validation error, not an internal one.
		_, err := fixture.service.Register(context.Background(), RegisterInput{
			Email:    "longwinded@example.com",
			Password: "Aa1!" + strings.Repeat("x", 80),
		})
		require.Error(t, err)
		require.NotNil(t, apperr.As(err))
		assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

		_, findErr := fixture.users.FindByEmail(context.Background(), "longwinded@example.com")
		assert.ErrorIs(t, findErr, dberr.ErrNotFound)
	})

	t.Run("lookup_outage_is_not_a_free_email", func(t *testing.T) {
		fixture.users.findByEmailErr = errors.New("connection refused")
		defer func() { fixture.users.findByEmailErr = nil }()

		_, err := fixture.service.Register(context.Background(), RegisterInput{
			Email:    "unlucky@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		assert.Nil(t, apperr.As(err), "an outage must surface as an internal failure, not a client error")
	})

	t.Run("lost_insert_race_still_conflicts", func(t *testing.T) {
		// Two requests can both see the email as free; the unique index
		// decides, and the loser's insert must map to the same conflict.
		fixture.users.findByEmailErr = dberr.ErrNotFound
		defer func() { fixture.users.findByEmailErr = nil }()

		_, err := fixture.service.Register(context.Background(), RegisterInput{
			Email:    "greta@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		require.NotNil(t, apperr.As(err))
		assert.Equal(t, "CONFLICT", apperr.As(err).Code)
	})
}

// # Login & Lockout

func TestService_Login(t *testing.T) {
	t.Run("success_opens_session_family", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "ines@example.com")

		session := fixture.login(t, "ines@example.com")

		assert.NotEmpty(t, session.AccessToken)
		assert.NotEmpty(t, session.RefreshToken)
		assert.NotEmpty(t, session.CSRFToken)
		assert.Equal(t, user.ID, session.User.ID)

		// The first refresh token must be recorded, spendable, in the new family.
		found := false
		fixture.ledger.mu.Lock()
		for _, entry := range fixture.ledger.entries {
			if entry.SessionID == session.SessionID {
				found = true
				assert.Nil(t, entry.ConsumedAt)
				assert.Equal(t, user.ID, entry.UserID)
			}
		}
		fixture.ledger.mu.Unlock()
		assert.True(t, found)
	})

	t.Run("failed_session_open_leaves_nothing_behind", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "halted@example.com")
		fixture.ledger.openFamilyErr = errors.New("tx aborted")

		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "halted@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)

		// Session and ledger are written as one unit, so neither exists.
		fixture.sessions.mu.Lock()
		assert.Empty(t, fixture.sessions.sessions)
		fixture.sessions.mu.Unlock()
		fixture.ledger.mu.Lock()
		assert.Empty(t, fixture.ledger.entries)
		fixture.ledger.mu.Unlock()
	})

	t.Run("wrong_password_is_generic_and_counted", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "nils@example.com")

		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "nils@example.com",
			Password: "Wrong!Password1",
		})
		require.Error(t, err)
		assert.Equal(t, "INVALID_CREDENTIALS", apperr.As(err).Code)

		count, _ := fixture.attempts.Count(context.Background(), "nils@example.com")
		assert.EqualValues(t, 1, count)
	})

	t.Run("unknown_email_same_generic_error", func(t *testing.T) {
		fixture := newServiceFixture(t)

		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "ghost@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		assert.Equal(t, "INVALID_CREDENTIALS", apperr.As(err).Code)
	})

	t.Run("deactivated_account_same_generic_error", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "gone@example.com")
		fixture.users.mu.Lock()
		fixture.users.users[user.ID].IsActive = false
		fixture.users.mu.Unlock()

		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "gone@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		assert.Equal(t, "INVALID_CREDENTIALS", apperr.As(err).Code)
	})

	t.Run("lockout_after_threshold_even_with_correct_password", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "karla@example.com")

		for i := 0; i < sec.LockoutThreshold; i++ {
			_, err := fixture.service.Login(context.Background(), LoginInput{
				Email:    "karla@example.com",
				Password: "Wrong!Password1",
			})
			require.Error(t, err)
		}

		// Even the correct password bounces off the lockout gate.
		_, err := fixture.service.Login(context.Background(), LoginInput{
			Email:    "karla@example.com",
			Password: fixturePassword,
		})
		require.Error(t, err)
		assert.Equal(t, "RATE_LIMITED", apperr.As(err).Code)
	})

	t.Run("success_resets_counter", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "lena@example.com")

		for i := 0; i < sec.LockoutThreshold-1; i++ {
			_, _ = fixture.service.Login(context.Background(), LoginInput{
				Email:    "lena@example.com",
				Password: "Wrong!Password1",
			})
		}

		fixture.login(t, "lena@example.com")

		count, _ := fixture.attempts.Count(context.Background(), "lena@example.com")
		assert.EqualValues(t, 0, count)
	})
}

// # Rotation & Reuse Detection

func TestService_Refresh(t *testing.T) {
	t.Run("rotation_stays_in_family_and_consumes_predecessor", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "otto@example.com")
		first := fixture.login(t, "otto@example.com")

		rotated, err := fixture.service.Refresh(context.Background(), first.RefreshToken, "unit-test", "203.0.113.7")
		require.NoError(t, err)

		assert.Equal(t, first.SessionID, rotated.SessionID)
		assert.NotEqual(t, first.RefreshToken, rotated.RefreshToken)
		assert.NotEqual(t, first.CSRFToken, rotated.CSRFToken)

		// Exactly one spendable entry remains, and the consumed one says "rotated".
		spendable := 0
		fixture.ledger.mu.Lock()
		for _, entry := range fixture.ledger.entries {
			if entry.ConsumedAt == nil {
				spendable++
			} else {
				assert.Equal(t, ReasonRotated, entry.Reason)
			}
		}
		fixture.ledger.mu.Unlock()
		assert.Equal(t, 1, spendable)
	})

	t.Run("reuse_revokes_entire_family", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "pia@example.com")
		first := fixture.login(t, "pia@example.com")

		_, err := fixture.service.Refresh(context.Background(), first.RefreshToken, "unit-test", "203.0.113.7")
		require.NoError(t, err)

		// Presenting the already-spent token is replay evidence.
		_, err = fixture.service.Refresh(context.Background(), first.RefreshToken, "unit-test", "203.0.113.7")
		require.Error(t, err)
		assert.Equal(t, "TOKEN_REUSE_DETECTED", apperr.As(err).Code)

		// The session is revoked and every entry in the family is consumed.
		session, findErr := fixture.sessions.FindByID(context.Background(), first.SessionID)
		require.NoError(t, findErr)
		assert.True(t, session.IsRevoked)
		assert.Equal(t, ReasonReused, session.RevokedReason)

		fixture.ledger.mu.Lock()
		for _, entry := range fixture.ledger.entries {
			assert.NotNil(t, entry.ConsumedAt)
		}
		fixture.ledger.mu.Unlock()
	})

	t.Run("garbage_token_is_invalid", func(t *testing.T) {
		fixture := newServiceFixture(t)

		_, err := fixture.service.Refresh(context.Background(), "not-a-jwt", "unit-test", "203.0.113.7")
		require.Error(t, err)
		assert.Equal(t, "TOKEN_INVALID", apperr.As(err).Code)
	})

	t.Run("revoked_family_rejects_spendable_token", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "uwe@example.com")
		first := fixture.login(t, "uwe@example.com")

		require.NoError(t, fixture.ledger.RevokeFamily(context.Background(), first.SessionID, ReasonAdmin))

		_, err := fixture.service.Refresh(context.Background(), first.RefreshToken, "unit-test", "203.0.113.7")
		require.Error(t, err)
		// The family revocation consumed the entry, so the presentation reads
		// as reuse of a dead family.
		assert.Equal(t, "TOKEN_REUSE_DETECTED", apperr.As(err).Code)
	})
}

// # Logout

func TestService_Logout(t *testing.T) {
	t.Run("revokes_family", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "vera@example.com")
		session := fixture.login(t, "vera@example.com")

		require.NoError(t, fixture.service.Logout(context.Background(), session.RefreshToken))

		stored, err := fixture.sessions.FindByID(context.Background(), session.SessionID)
		require.NoError(t, err)
		assert.True(t, stored.IsRevoked)
		assert.Equal(t, ReasonLogout, stored.RevokedReason)

		_, err = fixture.service.Refresh(context.Background(), session.RefreshToken, "unit-test", "203.0.113.7")
		require.Error(t, err)
	})

	t.Run("idempotent_on_garbage", func(t *testing.T) {
		fixture := newServiceFixture(t)
		assert.NoError(t, fixture.service.Logout(context.Background(), "not-a-jwt"))
	})

	t.Run("idempotent_on_repeat", func(t *testing.T) {
		fixture := newServiceFixture(t)
		fixture.registerUser(t, "wim@example.com")
		session := fixture.login(t, "wim@example.com")

		require.NoError(t, fixture.service.Logout(context.Background(), session.RefreshToken))
		assert.NoError(t, fixture.service.Logout(context.Background(), session.RefreshToken))
	})
}

// # Session Management Scoping

func TestService_SessionScoping(t *testing.T) {
	fixture := newServiceFixture(t)
	owner := fixture.registerUser(t, "owner@example.com")
	stranger := fixture.registerUser(t, "stranger@example.com")
	admin := fixture.registerUser(t, "admin@example.com")
	admin = fixture.promote(admin.ID, sec.RoleAdmin)

	ownerSession := fixture.login(t, "owner@example.com")

	t.Run("user_lists_own_sessions", func(t *testing.T) {
		sessions, err := fixture.service.ListSessions(context.Background(), claimsFor(owner), owner.ID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, ownerSession.SessionID, sessions[0].ID)
	})

	t.Run("stranger_cannot_list_others", func(t *testing.T) {
		_, err := fixture.service.ListSessions(context.Background(), claimsFor(stranger), owner.ID)
		require.Error(t, err)
		assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
	})

	t.Run("admin_lists_anyone", func(t *testing.T) {
		sessions, err := fixture.service.ListSessions(context.Background(), claimsFor(admin), owner.ID)
		require.NoError(t, err)
		assert.Len(t, sessions, 1)
	})

	t.Run("stranger_cannot_revoke_others_session", func(t *testing.T) {
		err := fixture.service.RevokeSession(context.Background(), claimsFor(stranger), ownerSession.SessionID)
		require.Error(t, err)
		assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
	})

	t.Run("admin_revocation_is_marked_admin", func(t *testing.T) {
		err := fixture.service.RevokeSession(context.Background(), claimsFor(admin), ownerSession.SessionID)
		require.NoError(t, err)

		session, findErr := fixture.sessions.FindByID(context.Background(), ownerSession.SessionID)
		require.NoError(t, findErr)
		assert.True(t, session.IsRevoked)
		assert.Equal(t, ReasonAdmin, session.RevokedReason)
	})

	t.Run("unknown_session_not_found", func(t *testing.T) {
		err := fixture.service.RevokeSession(context.Background(), claimsFor(admin), "00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
	})
}

func TestService_RevokeAllSessions(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.registerUser(t, "multi@example.com")

	first := fixture.login(t, "multi@example.com")
	second := fixture.login(t, "multi@example.com")
	third := fixture.login(t, "multi@example.com")

	err := fixture.service.RevokeAllSessions(context.Background(), claimsFor(user), user.ID, second.SessionID)
	require.NoError(t, err)

	active, err := fixture.sessions.ListActiveByUser(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, second.SessionID, active[0].ID)

	// The spared session still rotates; the revoked ones do not.
	_, err = fixture.service.Refresh(context.Background(), second.RefreshToken, "unit-test", "203.0.113.7")
	assert.NoError(t, err)
	_, err = fixture.service.Refresh(context.Background(), first.RefreshToken, "unit-test", "203.0.113.7")
	assert.Error(t, err)
	_, err = fixture.service.Refresh(context.Background(), third.RefreshToken, "unit-test", "203.0.113.7")
	assert.Error(t, err)
}

// # Password Change

func TestService_ChangePassword(t *testing.T) {
	t.Run("wrong_current_password_rejected", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "rosa@example.com")
		session := fixture.login(t, "rosa@example.com")

		err := fixture.service.ChangePassword(context.Background(), user.ID, "Wrong!Password1", "NewSecret!Pass2", session.RefreshToken)
		require.Error(t, err)
		assert.Equal(t, "UNAUTHORIZED", apperr.As(err).Code)
	})

	t.Run("success_revokes_other_devices_only", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "tess@example.com")

		phone := fixture.login(t, "tess@example.com")
		laptop := fixture.login(t, "tess@example.com")

		err := fixture.service.ChangePassword(context.Background(), user.ID, fixturePassword, "NewSecret!Pass2", laptop.RefreshToken)
		require.NoError(t, err)

		// Old password no longer authenticates; the new one does.
		_, err = fixture.service.Login(context.Background(), LoginInput{Email: "tess@example.com", Password: fixturePassword})
		require.Error(t, err)
		_, err = fixture.service.Login(context.Background(), LoginInput{Email: "tess@example.com", Password: "NewSecret!Pass2"})
		require.NoError(t, err)

		// The phone's family is dead, the laptop's survives.
		_, err = fixture.service.Refresh(context.Background(), phone.RefreshToken, "unit-test", "203.0.113.7")
		assert.Error(t, err)
		_, err = fixture.service.Refresh(context.Background(), laptop.RefreshToken, "unit-test", "203.0.113.7")
		assert.NoError(t, err)
	})

	t.Run("oversized_new_password_rejected", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "maxed@example.com")
		session := fixture.login(t, "maxed@example.com")

		err := fixture.service.ChangePassword(context.Background(), user.ID, fixturePassword, "Aa1!"+strings.Repeat("x", 80), session.RefreshToken)
		require.Error(t, err)
		require.NotNil(t, apperr.As(err))
		assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)

		// The old password still authenticates.
		_, err = fixture.service.Login(context.Background(), LoginInput{Email: "maxed@example.com", Password: fixturePassword})
		assert.NoError(t, err)
	})

	t.Run("revocation_failure_is_reported", func(t *testing.T) {
		fixture := newServiceFixture(t)
		user := fixture.registerUser(t, "stuck@example.com")
		session := fixture.login(t, "stuck@example.com")
		fixture.ledger.revokeAllErr = errors.New("ledger down")

		err := fixture.service.ChangePassword(context.Background(), user.ID, fixturePassword, "NewSecret!Pass2", session.RefreshToken)
		require.Error(t, err)
		assert.Nil(t, apperr.As(err), "the caller must learn other devices were NOT logged out")
	})
}

// # Principal Resolution

func TestService_ResolvePrincipal(t *testing.T) {
	fixture := newServiceFixture(t)
	user := fixture.registerUser(t, "paula@example.com")

	fixture.promote(user.ID, sec.RoleOwner)
	resolver := fixture.service.ownershipResolver.(*staticOwnershipResolver)
	resolver.owned[user.ID] = []string{"0190b2f0-1111-7abc-8def-1234567890ab"}

	principal, err := fixture.service.ResolvePrincipal(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, user.ID, principal.ID)
	assert.Equal(t, sec.RoleOwner, principal.Role)
	assert.True(t, sec.CanAccessResource(principal, "0190b2f0-1111-7abc-8def-1234567890ab"))
	assert.False(t, sec.CanAccessResource(principal, "0190b2f0-2222-7abc-8def-1234567890ab"))
}
