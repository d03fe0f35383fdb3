// Copyright (c) 2026 Townhub. All rights reserved.

package auth

import (
	"context"
	"errors"
	"time"
)

// # Rotation Sentinels
//
// The ledger repository reports rotation failures through these sentinels so
// the service can tell an unknown token apart from REPLAY EVIDENCE. The
// distinction drives very different responses: unknown tokens are rejected
// quietly, consumed tokens trigger family-wide revocation.
var (
	// ErrLedgerNotFound means the jti has never been recorded.
	ErrLedgerNotFound = errors.New("auth: refresh token not found in ledger")

	// ErrTokenConsumed means the jti exists but was already spent. By the
	// time Rotate returns it, the token's family has been revoked.
	ErrTokenConsumed = errors.New("auth: refresh token already consumed")

	// ErrSessionInactive means the owning session is revoked or expired.
	ErrSessionInactive = errors.New("auth: session is revoked or expired")
)

// # User Data Access

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {

	/*
		FindByID returns the account with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*User, error)

	/*
		FindByEmail returns the account with the given email.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *User: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*User, error)

	/*
		Create persists a brand-new user account to the storage.

		Parameters:
		  - context: context.Context
		  - user: *User

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, user *User) error

	/*
		UpdatePassword replaces only the user's password hash.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, userID, newHash string) error
}

// # Session Data Access

// SessionRepository defines the data access contract for login sessions.
//
// Session rows are only ever created together with their founding ledger
// entry — see [LedgerRepository] OpenFamily — so a session can never exist
// without a refresh family.
type SessionRepository interface {

	/*
		FindByID returns the session with the given ID.

		Parameters:
		  - context: context.Context
		  - sessionID: string

		Returns:
		  - *Session: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, sessionID string) (*Session, error)

	/*
		ListActiveByUser returns every non-revoked, non-expired session
		belonging to the userID, most recently seen first.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []*Session: Active sessions
		  - error: Database retrieval failures
	*/
	ListActiveByUser(context context.Context, userID string) ([]*Session, error)

	/*
		DeleteExpired physically removes sessions whose ExpiresAt is in the past.

		Parameters:
		  - context: context.Context

		Returns:
		  - error: Persistence failures
	*/
	DeleteExpired(context context.Context) error
}

// # Refresh Ledger Access

// LedgerRepository defines the data access contract for the single-use
// refresh token ledger.
//
// # Concurrency Contract
//
// Rotate is the hot path and MUST be atomic: when N concurrent requests
// present the same jti, exactly one wins and the other N-1 receive
// [ErrTokenConsumed]. Implementations back this with a conditional update
// inside a transaction, never a read-then-write.
type LedgerRepository interface {

	/*
		OpenFamily persists a new session and its founding ledger entry in
		one transaction, so a crash between the two writes can never leave
		an orphan session without a refresh family.

		Parameters:
		  - context: context.Context
		  - session: *Session
		  - root: *LedgerEntry (The family's first refresh token)

		Returns:
		  - error: Persistence failures
	*/
	OpenFamily(context context.Context, session *Session, root *LedgerEntry) error

	/*
		FindByJTI returns the ledger entry for the given jti, consumed or not.

		Parameters:
		  - context: context.Context
		  - jti: string

		Returns:
		  - *LedgerEntry: Hydrated entry
		  - error: ErrLedgerNotFound or retrieval failures
	*/
	FindByJTI(context context.Context, jti string) (*LedgerEntry, error)

	/*
		Rotate atomically consumes the entry identified by jti and records its
		successor in the same session family. The successor's SessionID is
		taken from the consumed entry, not from the caller.

		Presenting an already-consumed jti is replay evidence: the entry's
		whole family is revoked (reason "reused") within the same transaction
		BEFORE ErrTokenConsumed is returned, so the error always means the
		revocation has happened.

		Parameters:
		  - context: context.Context
		  - jti: string (The token being spent)
		  - next: *LedgerEntry (The replacement entry; SessionID filled in)

		Returns:
		  - *LedgerEntry: The consumed predecessor
		  - error: ErrLedgerNotFound, ErrTokenConsumed, ErrSessionInactive,
		    or persistence failures
	*/
	Rotate(context context.Context, jti string, next *LedgerEntry) (*LedgerEntry, error)

	/*
		RevokeFamily revokes the session and consumes every spendable entry
		belonging to it, in one transaction.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - reason: string (One of the Reason* vocabulary)

		Returns:
		  - error: Persistence failures
	*/
	RevokeFamily(context context.Context, sessionID, reason string) error

	/*
		RevokeAllFamilies revokes every active session of the userID and
		consumes all their spendable entries. An exceptSessionID may be
		supplied to spare the caller's own session; pass "" to spare none.

		Parameters:
		  - context: context.Context
		  - userID: string
		  - reason: string
		  - exceptSessionID: string

		Returns:
		  - error: Persistence failures
	*/
	RevokeAllFamilies(context context.Context, userID, reason, exceptSessionID string) error

	/*
		DeleteExpired physically removes entries whose ExpiresAt is in the past.

		Parameters:
		  - context: context.Context

		Returns:
		  - error: Persistence failures
	*/
	DeleteExpired(context context.Context) error
}

// # Volatile Data Access

// AttemptRepository defines the contract for the shared failed-login counter.
//
// Counters live in volatile storage with a TTL equal to the lockout window,
// so every concurrent login handler observes one consistent count and stale
// counters expire on their own.
type AttemptRepository interface {

	/*
		Increment adds one failed attempt for the identity and returns the
		updated count. The window TTL is applied only when the counter is
		first created, so the lockout clock starts at the FIRST failure.

		Parameters:
		  - context: context.Context
		  - email: string
		  - window: time.Duration

		Returns:
		  - int64: Updated failure count
		  - error: Storage failures
	*/
	Increment(context context.Context, email string, window time.Duration) (int64, error)

	/*
		Count returns the current failure count for the identity.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - int64: Current count (0 when absent)
		  - error: Storage failures
	*/
	Count(context context.Context, email string) (int64, error)

	/*
		Reset clears the failure counter after a successful authentication.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - error: Storage failures
	*/
	Reset(context context.Context, email string) error
}

// # Ownership Resolution

// OwnershipResolver resolves the directory resources owned by a user.
//
// # Why an interface?
//
// Ownership data lives in the directory domain. Declaring the contract here
// keeps the dependency pointing outward: the directory store implements it,
// and this package never imports directory code.
type OwnershipResolver interface {

	/*
		OwnedResourceIDs returns the IDs of every resource the user owns.

		Parameters:
		  - context: context.Context
		  - userID: string

		Returns:
		  - []string: Owned resource UUIDs
		  - error: Retrieval failures
	*/
	OwnedResourceIDs(context context.Context, userID string) ([]string, error)
}
