// Package store provides persistent storage for conversations and messages
// using SQLite.
//
// # Data Models
//
//   - Conversation: pairs exactly two participants; the pair is unordered
//     and stored in canonical order so a UNIQUE index guarantees at most
//     one conversation per pair
//   - Message: one unit of text within a conversation; immutable after
//     append except for the one-way is_read flag
//
// # Consistency
//
// AppendMessage inserts the message and bumps the conversation's
// last_message_at inside one transaction, so concurrent appends on the
// same conversation never lose the recency update. First-contact races on
// CreateConversation surface as ErrDuplicateConversation, which callers
// resolve by re-reading the winner's row.
//
// Timestamps are stored as UTC unix nanoseconds. Reconciliation queries
// filter with a strict sent_at > cursor comparison, which needs
// sub-second precision.
package store
