// Copyright (c) 2026 Townhub. All rights reserved.

// PostgreSQL implementations of the identity repositories.
//
// # Architecture
//
// Repositories in this file are strictly separated from domain logic. They
// implement domain-defined interfaces (e.g., [UserRepository]) using the
// [pgxpool.Pool] connection manager.
//
// # Error Mapping
//
// Storage-specific errors (like pgx.ErrNoRows) are mapped to domain-friendly
// [apperr.AppError] types or rotation sentinels to avoid leaking storage
// implementation details.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/dberr"
)

// # User Repository

// PostgresUserRepository implements the UserRepository interface using pgx.
type PostgresUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

/*
Create persists a new user record into the iam.account table.

Description: Deep-persists account metadata, ensuring timestamps are initialized
if not provided.

Parameters:
  - context: context.Context
  - user: *User (Entity to persist)

Returns:
  - error: Database constraint violations or connectivity errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO iam.account (
			id, email, passwordhash, displayname, role, permissions, isactive, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.DisplayName,
		user.Role,
		user.Permissions,
		user.IsActive,
		user.CreatedAt,
		user.UpdatedAt,
	)

	// Route through dberr so the partial unique index on live emails
	// surfaces as a conflict, not an opaque internal error.
	return dberr.Wrap(err, "create_account")
}

/*
FindByEmail retrieves a user record by their unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *User: Hydrated account entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	const query = `
		SELECT id, email, passwordhash, displayname, role, permissions, isactive, createdat, updatedat
		FROM iam.account
		WHERE email = $1 AND deletedat IS NULL`

	user := &User{}
	err := repository.pool.QueryRow(context, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.Permissions,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "find_account_by_email")
	}

	return user, nil
}

/*
FindByID retrieves a user record by their unique ID.

Parameters:
  - context: context.Context
  - id: string (UUIDv7)

Returns:
  - *User: Hydrated account entity
  - error: Not found or execution errors
*/
func (repository *PostgresUserRepository) FindByID(context context.Context, id string) (*User, error) {
	const query = `
		SELECT id, email, passwordhash, displayname, role, permissions, isactive, createdat, updatedat
		FROM iam.account
		WHERE id = $1 AND deletedat IS NULL`

	user := &User{}
	err := repository.pool.QueryRow(context, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.DisplayName,
		&user.Role,
		&user.Permissions,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		return nil, dberr.Wrap(err, "find_account_by_id")
	}

	return user, nil
}

/*
UpdatePassword updates only the password hash for a specific user.

Parameters:
  - context: context.Context
  - userID: string
  - newHash: string

Returns:
  - error: Execution errors
*/
func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID, newHash string) error {
	const query = `
		UPDATE iam.account
		SET passwordhash = $2, updatedat = $3
		WHERE id = $1 AND deletedat IS NULL`

	_, err := repository.pool.Exec(context, query, userID, newHash, time.Now())
	return dberr.Wrap(err, "update_account_password")
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
FindByID retrieves a session by its unique ID, revoked or not.

Parameters:
  - context: context.Context
  - sessionID: string

Returns:
  - *Session: Hydrated session metadata
  - error: apperr.NotFound or execution errors
*/
func (repository *PostgresSessionRepository) FindByID(context context.Context, sessionID string) (*Session, error) {
	const query = `
		SELECT id, userid, useragent, ipaddress, createdat, lastseenat, expiresat, isrevoked, revokedreason
		FROM iam.session
		WHERE id = $1`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&session.UserAgent,
		&session.IPAddress,
		&session.CreatedAt,
		&session.LastSeenAt,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedReason,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session not found")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_failed: %w", err)
	}

	return session, nil
}

/*
ListActiveByUser returns all non-revoked, non-expired sessions for a user.

Parameters:
  - context: context.Context
  - userID: string

Returns:
  - []*Session: Active sessions, most recently seen first
  - error: Retrieval failures
*/
func (repository *PostgresSessionRepository) ListActiveByUser(context context.Context, userID string) ([]*Session, error) {
	const query = `
		SELECT id, userid, useragent, ipaddress, createdat, lastseenat, expiresat, isrevoked, revokedreason
		FROM iam.session
		WHERE userid = $1 AND isrevoked = FALSE AND expiresat > NOW()
		ORDER BY lastseenat DESC`

	rows, err := repository.pool.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_session_repo_list_failed: %w", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session := &Session{}
		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&session.UserAgent,
			&session.IPAddress,
			&session.CreatedAt,
			&session.LastSeenAt,
			&session.ExpiresAt,
			&session.IsRevoked,
			&session.RevokedReason,
		); err != nil {
			return nil, fmt.Errorf("postgres_session_repo_scan_failed: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_session_repo_rows_failed: %w", err)
	}

	return sessions, nil
}

/*
DeleteExpired permanently removes all sessions that have passed their expiration.

Parameters:
  - context: context.Context

Returns:
  - error: Cleanup failures
*/
func (repository *PostgresSessionRepository) DeleteExpired(context context.Context) error {
	const query = "DELETE FROM iam.session WHERE expiresat <= NOW()"
	_, err := repository.pool.Exec(context, query)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_delete_expired_failed: %w", err)
	}
	return nil
}

// # Refresh Ledger Repository

// PostgresLedgerRepository implements the LedgerRepository interface.
type PostgresLedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new PostgreSQL implementation of LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{pool: pool}
}

/*
OpenFamily persists a new session together with its founding ledger entry.

Description: Both inserts run in one transaction. A crash between them can
never leave a session with no refresh family, or a ledger entry pointing at a
session that was never written.

Parameters:
  - context: context.Context
  - session: *Session
  - root: *LedgerEntry (must reference session.ID)

Returns:
  - error: Storage failures
*/
func (repository *PostgresLedgerRepository) OpenFamily(context context.Context, session *Session, root *LedgerEntry) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastSeenAt.IsZero() {
		session.LastSeenAt = now
	}
	if root.IssuedAt.IsZero() {
		root.IssuedAt = now
	}

	const sessionQuery = `
		INSERT INTO iam.session (
			id, userid, useragent, ipaddress, createdat, lastseenat, expiresat, isrevoked, revokedreason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = transaction.Exec(context, sessionQuery,
		session.ID,
		session.UserID,
		session.UserAgent,
		session.IPAddress,
		session.CreatedAt,
		session.LastSeenAt,
		session.ExpiresAt,
		session.IsRevoked,
		session.RevokedReason,
	)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_open_session_failed: %w", err)
	}

	const rootQuery = `
		INSERT INTO iam.refresh_ledger (
			jti, userid, sessionid, issuedat, expiresat, consumedat, reason
		) VALUES ($1, $2, $3, $4, $5, NULL, '')`

	_, err = transaction.Exec(context, rootQuery,
		root.JTI,
		root.UserID,
		root.SessionID,
		root.IssuedAt,
		root.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_open_root_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_ledger_repo_commit_failed: %w", err)
	}

	return nil
}

/*
FindByJTI returns the ledger entry for a jti, consumed or not.

Parameters:
  - context: context.Context
  - jti: string

Returns:
  - *LedgerEntry: Hydrated entry
  - error: ErrLedgerNotFound or execution errors
*/
func (repository *PostgresLedgerRepository) FindByJTI(context context.Context, jti string) (*LedgerEntry, error) {
	const query = `
		SELECT jti, userid, sessionid, issuedat, expiresat, consumedat, reason
		FROM iam.refresh_ledger
		WHERE jti = $1`

	entry := &LedgerEntry{}
	err := repository.pool.QueryRow(context, query, jti).Scan(
		&entry.JTI,
		&entry.UserID,
		&entry.SessionID,
		&entry.IssuedAt,
		&entry.ExpiresAt,
		&entry.ConsumedAt,
		&entry.Reason,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLedgerNotFound
		}
		return nil, fmt.Errorf("postgres_ledger_repo_find_failed: %w", err)
	}

	return entry, nil
}

/*
Rotate atomically spends a refresh token and records its successor.

Description: The consumption is a CONDITIONAL update (consumedat IS NULL), so
under concurrent presentation of the same jti exactly one transaction wins.
Losers observe zero affected rows and receive ErrTokenConsumed. The whole
exchange (consume, session check, successor insert, session touch) commits or
rolls back as one unit.

Parameters:
  - context: context.Context
  - jti: string
  - next: *LedgerEntry (SessionID is overwritten from the consumed entry)

Returns:
  - *LedgerEntry: The consumed predecessor
  - error: ErrLedgerNotFound, ErrTokenConsumed, ErrSessionInactive, or storage failures
*/
func (repository *PostgresLedgerRepository) Rotate(context context.Context, jti string, next *LedgerEntry) (*LedgerEntry, error) {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return nil, fmt.Errorf("postgres_ledger_repo_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	// 1. Conditionally consume the presented token. Zero rows means the jti
	//    is either unknown or already spent; disambiguate below.
	const consumeQuery = `
		UPDATE iam.refresh_ledger
		SET consumedat = NOW(), reason = $2
		WHERE jti = $1 AND consumedat IS NULL AND expiresat > NOW()
		RETURNING jti, userid, sessionid, issuedat, expiresat, consumedat, reason`

	consumed := &LedgerEntry{}
	err = transaction.QueryRow(context, consumeQuery, jti, ReasonRotated).Scan(
		&consumed.JTI,
		&consumed.UserID,
		&consumed.SessionID,
		&consumed.IssuedAt,
		&consumed.ExpiresAt,
		&consumed.ConsumedAt,
		&consumed.Reason,
	)

	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("postgres_ledger_repo_consume_failed: %w", err)
		}

		// Disambiguate: unknown jti vs. already-consumed jti. An expired but
		// never-consumed entry is NOT replay evidence, only an invalid token.
		const probeQuery = "SELECT consumedat IS NOT NULL, sessionid FROM iam.refresh_ledger WHERE jti = $1"
		var alreadySpent bool
		var familySessionID string
		probeErr := transaction.QueryRow(context, probeQuery, jti).Scan(&alreadySpent, &familySessionID)
		if probeErr != nil {
			if errors.Is(probeErr, pgx.ErrNoRows) {
				return nil, ErrLedgerNotFound
			}
			return nil, fmt.Errorf("postgres_ledger_repo_probe_failed: %w", probeErr)
		}
		if !alreadySpent {
			return nil, ErrLedgerNotFound
		}

		// Replay evidence. Revoke the whole family in THIS transaction so
		// ErrTokenConsumed never reports a revocation that didn't commit.
		if err := revokeFamilyTx(context, transaction, familySessionID, ReasonReused); err != nil {
			return nil, err
		}
		if err := transaction.Commit(context); err != nil {
			return nil, fmt.Errorf("postgres_ledger_repo_commit_failed: %w", err)
		}
		return nil, ErrTokenConsumed
	}

	// 2. Verify the owning session is still active.
	const sessionQuery = "SELECT isrevoked OR expiresat <= NOW() FROM iam.session WHERE id = $1 FOR UPDATE"
	var inactive bool
	if err := transaction.QueryRow(context, sessionQuery, consumed.SessionID).Scan(&inactive); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionInactive
		}
		return nil, fmt.Errorf("postgres_ledger_repo_session_check_failed: %w", err)
	}
	if inactive {
		return nil, ErrSessionInactive
	}

	// 3. Record the successor in the same family.
	next.SessionID = consumed.SessionID
	if next.IssuedAt.IsZero() {
		next.IssuedAt = time.Now()
	}

	const insertQuery = `
		INSERT INTO iam.refresh_ledger (
			jti, userid, sessionid, issuedat, expiresat, consumedat, reason
		) VALUES ($1, $2, $3, $4, $5, NULL, '')`

	_, err = transaction.Exec(context, insertQuery,
		next.JTI,
		next.UserID,
		next.SessionID,
		next.IssuedAt,
		next.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres_ledger_repo_successor_failed: %w", err)
	}

	// 4. Touch the session's activity timestamp.
	const touchQuery = "UPDATE iam.session SET lastseenat = NOW() WHERE id = $1"
	if _, err := transaction.Exec(context, touchQuery, consumed.SessionID); err != nil {
		return nil, fmt.Errorf("postgres_ledger_repo_touch_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return nil, fmt.Errorf("postgres_ledger_repo_commit_failed: %w", err)
	}

	return consumed, nil
}

/*
RevokeFamily revokes a session and consumes all its spendable ledger entries.

Description: Both writes happen in one transaction so a crash can never leave
a revoked session with spendable tokens, or vice versa.

Parameters:
  - context: context.Context
  - sessionID: string
  - reason: string

Returns:
  - error: Revocation failures
*/
func (repository *PostgresLedgerRepository) RevokeFamily(context context.Context, sessionID, reason string) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	if err := revokeFamilyTx(context, transaction, sessionID, reason); err != nil {
		return err
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_ledger_repo_commit_failed: %w", err)
	}

	return nil
}

// revokeFamilyTx runs the session revocation and family consumption inside an
// existing transaction. The guards keep it idempotent: a session already
// revoked for another reason keeps that reason, as do consumed entries.
func revokeFamilyTx(context context.Context, transaction pgx.Tx, sessionID, reason string) error {
	const revokeSessionQuery = `
		UPDATE iam.session
		SET isrevoked = TRUE, revokedreason = $2
		WHERE id = $1 AND isrevoked = FALSE`
	if _, err := transaction.Exec(context, revokeSessionQuery, sessionID, reason); err != nil {
		return fmt.Errorf("postgres_ledger_repo_revoke_session_failed: %w", err)
	}

	const consumeFamilyQuery = `
		UPDATE iam.refresh_ledger
		SET consumedat = NOW(), reason = $2
		WHERE sessionid = $1 AND consumedat IS NULL`
	if _, err := transaction.Exec(context, consumeFamilyQuery, sessionID, reason); err != nil {
		return fmt.Errorf("postgres_ledger_repo_consume_family_failed: %w", err)
	}

	return nil
}

/*
RevokeAllFamilies revokes every active session of a user and consumes all
their spendable entries, optionally sparing one session.

Parameters:
  - context: context.Context
  - userID: string
  - reason: string
  - exceptSessionID: string ("" to spare none)

Returns:
  - error: Batch revocation failures
*/
func (repository *PostgresLedgerRepository) RevokeAllFamilies(context context.Context, userID, reason, exceptSessionID string) error {
	transaction, err := repository.pool.Begin(context)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(context) }()

	const revokeSessionsQuery = `
		UPDATE iam.session
		SET isrevoked = TRUE, revokedreason = $2
		WHERE userid = $1 AND isrevoked = FALSE AND ($3 = '' OR id != $3)`
	if _, err := transaction.Exec(context, revokeSessionsQuery, userID, reason, exceptSessionID); err != nil {
		return fmt.Errorf("postgres_ledger_repo_revoke_sessions_failed: %w", err)
	}

	const consumeEntriesQuery = `
		UPDATE iam.refresh_ledger
		SET consumedat = NOW(), reason = $2
		WHERE userid = $1 AND consumedat IS NULL AND ($3 = '' OR sessionid != $3)`
	if _, err := transaction.Exec(context, consumeEntriesQuery, userID, reason, exceptSessionID); err != nil {
		return fmt.Errorf("postgres_ledger_repo_consume_entries_failed: %w", err)
	}

	if err := transaction.Commit(context); err != nil {
		return fmt.Errorf("postgres_ledger_repo_commit_failed: %w", err)
	}

	return nil
}

/*
DeleteExpired permanently removes ledger entries past their expiration.

Parameters:
  - context: context.Context

Returns:
  - error: Cleanup failures
*/
func (repository *PostgresLedgerRepository) DeleteExpired(context context.Context) error {
	const query = "DELETE FROM iam.refresh_ledger WHERE expiresat <= NOW()"
	_, err := repository.pool.Exec(context, query)
	if err != nil {
		return fmt.Errorf("postgres_ledger_repo_delete_expired_failed: %w", err)
	}
	return nil
}
