// ABOUTME: Conversation directory - resolves an unordered participant pair to its single conversation
// ABOUTME: Creation races are resolved via the store's uniqueness constraint plus retry lookup

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/apperr"
	"github.com/sa3edo/RestaurantManagementSystem-sub000/internal/store"
)

// GetOrCreateConversation resolves the conversation for an unordered
// participant pair, creating it on first contact. Safe under concurrent
// first-contact: if two sends race to create a conversation for a brand-new
// pair, the uniqueness constraint lets exactly one row through and the
// losing caller transparently reuses the winner's record.
func (s *Service) GetOrCreateConversation(ctx context.Context, a, b string) (*store.Conversation, error) {
	conv, err := s.store.GetConversationByParticipants(ctx, a, b)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	now := s.now().UTC()
	low, high := store.CanonicalPair(a, b)
	conv = &store.Conversation{
		ID:              uuid.New().String(),
		ParticipantLow:  low,
		ParticipantHigh: high,
		CreatedAt:       now,
		LastMessageAt:   now,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrDuplicateConversation) {
			// Another request created the conversation between our lookup
			// and insert attempt
			existing, lookupErr := s.store.GetConversationByParticipants(ctx, a, b)
			if lookupErr == nil {
				s.logger.Debug("found existing conversation after race", "conversation_id", existing.ID)
				return existing, nil
			}
			s.logger.Error("retry lookup failed after duplicate error", "lookup_error", lookupErr)
			return nil, fmt.Errorf("resolving conversation after create race: %w", lookupErr)
		}
		return nil, err
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID)
	return conv, nil
}

// ListConversations returns the caller's conversations ordered by most
// recent activity, shaped for the conversation list view.
func (s *Service) ListConversations(ctx context.Context, participantID string) ([]*ConversationSummary, error) {
	if participantID == "" {
		return nil, apperr.Invalid("participant is required")
	}

	convs, err := s.store.ListConversationsForParticipant(ctx, participantID, 0)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	summaries := make([]*ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summaries = append(summaries, &ConversationSummary{
			ConversationID:     conv.ID,
			OtherParticipantID: conv.Other(participantID),
			LastMessageAt:      conv.LastMessageAt,
		})
	}
	return summaries, nil
}
