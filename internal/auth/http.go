// ABOUTME: HTTP middleware for participant authentication
// ABOUTME: Verifies bearer JWTs, or trusts the X-Participant-ID header when no verifier is configured

package auth

import (
	"net/http"
	"strings"
)

// ParticipantHeader carries the caller identity when token auth is disabled.
// Intended for development and for deployments behind a trusted proxy that
// authenticates upstream.
const ParticipantHeader = "X-Participant-ID"

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware creates an HTTP middleware that resolves the caller's
// participant identity and attaches it to the request context.
//
// With a non-nil verifier, requests must carry a valid bearer token and the
// identity comes from its sub claim. With a nil verifier, the identity is
// read from the X-Participant-ID header instead.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			participantID, errMsg := resolveParticipant(r, verifier)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithParticipant(r.Context(), participantID)))
		})
	}
}

func resolveParticipant(r *http.Request, verifier TokenVerifier) (string, string) {
	if verifier == nil {
		id := strings.TrimSpace(r.Header.Get(ParticipantHeader))
		if id == "" {
			return "", "missing " + ParticipantHeader + " header"
		}
		return id, ""
	}

	token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
	if errMsg != "" {
		// Websocket clients in browsers cannot set Authorization headers,
		// so also accept the token as a query parameter.
		token = r.URL.Query().Get("token")
		if token == "" {
			return "", errMsg
		}
	}

	participantID, err := verifier.Verify(token)
	if err != nil {
		return "", "invalid token"
	}
	return participantID, ""
}
