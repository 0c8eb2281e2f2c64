// ABOUTME: Request-scoped participant identity propagated via context
// ABOUTME: Populated by the auth middleware and read by handlers

package auth

import "context"

// participantKey is the key type for storing the participant ID in context.
type participantKey struct{}

// WithParticipant returns a new context carrying the authenticated participant ID.
func WithParticipant(ctx context.Context, participantID string) context.Context {
	return context.WithValue(ctx, participantKey{}, participantID)
}

// ParticipantFromContext retrieves the authenticated participant ID, returning
// an empty string if the request was not authenticated.
func ParticipantFromContext(ctx context.Context) string {
	id, _ := ctx.Value(participantKey{}).(string)
	return id
}
