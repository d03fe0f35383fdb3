// Copyright (c) 2026 Townhub. All rights reserved.

/*
HTTP delivery layer for user identity management.

It implements the gateway for the authentication lifecycle — from account
creation to session rotation, inspection, and revocation.

# Architecture

The handler acts as a thin mediation layer between the web and domain services:
  - Protocol: Standard RESTful JSON interface.
  - Security: Handles JWT orchestration plus refresh and CSRF cookie injection.
  - Verification: Enforces strict input validation before passing to [Service].

This layer is strictly responsible for transport concerns (status codes, headers, JSON).
*/
package auth

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/townhubhq/townhub/internal/platform/apperr"
	"github.com/townhubhq/townhub/internal/platform/constants"
	"github.com/townhubhq/townhub/internal/platform/middleware"
	requestutil "github.com/townhubhq/townhub/internal/platform/request"
	"github.com/townhubhq/townhub/internal/platform/respond"
	"github.com/townhubhq/townhub/internal/platform/validate"
)

// # Definitions & Constructors

// Handler implements authentication-related HTTP endpoints.
//
// # Scope
//
// This handler manages everything related to the user lifecycle entry points
// (Registration, Login, Rotation, Session Management).
type Handler struct {
	authService *Service
}

// NewHandler constructs a new [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{authService: service}
}

// Routes returns a [chi.Router] configured with authentication-specific routes.
//
// # Endpoints
//   - POST /register          : Creates a new account.
//   - POST /login             : Authenticates and returns a token pair.
//   - POST /refresh           : Rotates the refresh token.
//   - POST /logout            : Revokes the caller's session family.
//   - GET  /sessions          : Lists the caller's active sessions.
//   - POST /sessions/revoke   : Revokes one session family.
//   - POST /sessions/revoke-all : Revokes every session family of a user.
//   - POST /change-password   : Updates credentials, revoking other devices.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints. Login and refresh SET the CSRF cookie, so the guard
	// cannot apply to them.
	router.Post("/register", handler.register)
	router.Post("/login", handler.login)
	router.Post("/refresh", handler.refresh)

	// Protected endpoints behind the double-submit CSRF guard
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Use(middleware.CSRFGuard)
		r.Post("/logout", handler.logout)
		r.Get("/sessions", handler.listSessions)
		r.Post("/sessions/revoke", handler.revokeSession)
		r.Post("/sessions/revoke-all", handler.revokeAllSessions)
		r.Post("/change-password", handler.changePassword)
	})

	return router
}

// # Request Payloads

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type revokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

type revokeAllSessionsRequest struct {
	UserID      string `json:"user_id,omitempty"`
	KeepCurrent bool   `json:"keep_current,omitempty"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

/*
Register handles the creation of a new user account.

POST /api/v1/auth/register

Description: Validates input (including the full password policy), checks for
identity conflicts, and persists a new user profile to the database.

Request:
  - Body: registerRequest (Email, Password, DisplayName)

Response:
  - 201: User: Created user profile
  - 400: ErrInvalidJSON: Bad input or policy violation
  - 409: ErrConflict: Email already registered
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		Password(FieldPassword, input.Password).
		MaxLen(FieldDisplayName, input.DisplayName, 120)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.authService.Register(request.Context(), RegisterInput{
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

/*
Login authenticates a user and establishes a session family.

POST /api/v1/auth/login

Description: Verifies credentials behind the brute-force gate, opens a new
session family, and injects the refresh and CSRF cookies into the response.

Request:
  - Body: loginRequest (Email, Password)

Response:
  - 200: Session: Access token and User profile
  - 401: ErrInvalidCredentials: Wrong credentials (never says which part)
  - 429: ErrRateLimited: Identity is locked out
*/
func (handler *Handler) login(writer http.ResponseWriter, request *http.Request) {
	var input loginRequest

	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email)
	validator.Required(FieldPassword, input.Password)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	session, err := handler.authService.Login(request.Context(), LoginInput{
		Email:     input.Email,
		Password:  input.Password,
		UserAgent: request.UserAgent(),
		IPAddress: middleware.RealIP(request),
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	setSessionCookies(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(time.Until(session.AccessExpiresAt) / time.Second),
		FieldUser:        session.User,
	})
}

/*
Refresh rotates the caller's refresh token.

POST /api/v1/auth/refresh

Description: Spends the refresh token cookie against the single-use ledger
and issues a fresh pair in the same session family. A replayed token revokes
the entire family.

Response:
  - 200: RefreshResponse: New access token credentials
  - 401: ErrTokenInvalid / ErrTokenExpired / ErrTokenReuseDetected
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing refresh token in cookies"))
		return
	}

	session, err := handler.authService.Refresh(
		request.Context(),
		cookie.Value,
		request.UserAgent(),
		middleware.RealIP(request),
	)

	if err != nil {
		// A detected replay (or any rotation refusal) must not leave stale
		// credentials on the client.
		clearSessionCookies(writer)
		respond.Error(writer, request, err)
		return
	}

	setSessionCookies(writer, session)

	respond.OK(writer, map[string]any{
		FieldAccessToken: session.AccessToken,
		FieldTokenType:   "Bearer",
		FieldExpiresIn:   int64(time.Until(session.AccessExpiresAt) / time.Second),
	})
}

/*
Logout terminates the caller's session family.

POST /api/v1/auth/logout

Description: Revokes the session family tied to the refresh cookie (if any)
and clears the security cookies from the client. Always succeeds.

Response:
  - 204: No Content: Session terminated
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	cookie, err := request.Cookie(constants.RefreshTokenCookieName)

	if err == nil && cookie != nil && cookie.Value != "" {
		_ = handler.authService.Logout(request.Context(), cookie.Value)
	}

	clearSessionCookies(writer)

	respond.NoContent(writer)
}

/*
ListSessions lists active sessions for inspection.

GET /api/v1/auth/sessions?user_id=<uuid>

Description: Defaults to the caller's own sessions. The user_id query
parameter lets admins inspect other accounts.

Response:
  - 200: Sessions: Active session metadata
  - 403: ErrForbidden: Caller may not inspect the target user
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	targetUserID := request.URL.Query().Get(FieldUserID)
	if targetUserID == "" {
		targetUserID = claims.Subject
	}

	sessions, err := handler.authService.ListSessions(request.Context(), claims, targetUserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		FieldSessions: sessions,
	})
}

/*
RevokeSession revokes one session family by ID.

POST /api/v1/auth/sessions/revoke

Description: Remote logout of a single device. Owners revoke their own
sessions; admins revoke anyone's.

Request:
  - Body: revokeSessionRequest (SessionID)

Response:
  - 204: No Content: Family revoked
  - 403: ErrForbidden: Caller may not touch the target session
  - 404: ErrNotFound: Unknown session
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input revokeSessionRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldSessionID, input.SessionID).UUID(FieldSessionID, input.SessionID)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.authService.RevokeSession(request.Context(), claims, input.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
RevokeAllSessions revokes every session family of a user.

POST /api/v1/auth/sessions/revoke-all

Description: Panic-button logout of all devices. Defaults to the caller
themselves; admins may target other accounts. Setting keep_current spares
the session the caller is using right now.

Request:
  - Body: revokeAllSessionsRequest (UserID optional, KeepCurrent)

Response:
  - 204: No Content: Families revoked
  - 403: ErrForbidden: Caller may not touch the target user
*/
func (handler *Handler) revokeAllSessions(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input revokeAllSessionsRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	targetUserID := input.UserID
	if targetUserID == "" {
		targetUserID = claims.Subject
	}

	// Resolve the caller's own session for keep_current via the refresh cookie.
	exceptSessionID := ""
	if input.KeepCurrent {
		if cookie, cookieErr := request.Cookie(constants.RefreshTokenCookieName); cookieErr == nil && cookie.Value != "" {
			if session, refreshErr := currentSession(request, handler.authService, cookie.Value); refreshErr == nil {
				exceptSessionID = session
			}
		}
	}

	if err := handler.authService.RevokeAllSessions(request.Context(), claims, targetUserID, exceptSessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
ChangePassword updates the authenticated user's password.

POST /api/v1/auth/change-password

Description: Verifies the current password and security context, applies the
new password, and revokes every other device's session family.

Request:
  - Body: changePasswordRequest (CurrentPassword, NewPassword)

Response:
  - 200: Success: Password changed
  - 401: ErrUnauthorized: Wrong current password or missing session
  - 400: ErrInvalidJSON: Policy violation
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	cookie, err := request.Cookie(constants.RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing active session cookie"))
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword).
		Password(FieldNewPassword, input.NewPassword)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.authService.ChangePassword(
		request.Context(),
		claims.Subject,
		input.CurrentPassword,
		input.NewPassword,
		cookie.Value,
	)

	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "Password changed successfully",
	})
}

// # Cookie Helpers

// setSessionCookies writes the refresh and CSRF cookies for a session.
//
// The refresh cookie is HttpOnly and scoped to the auth endpoints. The CSRF
// cookie is deliberately READABLE: the double-submit check relies on the
// client echoing it, which a cross-site attacker cannot do.
func setSessionCookies(writer http.ResponseWriter, session *LoginSession) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    session.RefreshToken,
		Path:     constants.RefreshTokenCookiePath,
		Expires:  session.RefreshExpiresAt,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.CSRFTokenCookieName,
		Value:    session.CSRFToken,
		Path:     "/",
		Expires:  session.RefreshExpiresAt,
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearSessionCookies expires both security cookies on the client.
func clearSessionCookies(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.RefreshTokenCookieName,
		Value:    "",
		Path:     constants.RefreshTokenCookiePath,
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.CSRFTokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: false,
		SameSite: http.SameSiteStrictMode,
	})
}

// currentSession resolves the session family behind a refresh token without
// consuming it.
func currentSession(request *http.Request, service *Service, refreshToken string) (string, error) {
	claims, err := service.tokenManager.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	entry, err := service.ledgerRepository.FindByJTI(request.Context(), claims.ID)
	if err != nil {
		return "", err
	}

	return entry.SessionID, nil
}
