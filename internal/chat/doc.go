// Package chat provides the conversation and message-delivery service.
//
// # Overview
//
// The chat package sits between the HTTP/websocket handlers and the store,
// providing conversation-level operations: sending messages, paging
// history, read receipts, unread counts, and cursor-based reconciliation.
//
// # Service
//
// The Service coordinates all conversation operations:
//
//	svc := chat.NewService(store, notifier, logger)
//
// Key operations:
//
//   - Send(ctx, sender, receiver, content): validate, persist, fan out
//   - GetMessages(ctx, caller, other, page, pageSize): paged history
//   - MarkRead(ctx, messageID, reader): one-way read transition
//   - UnreadCount(ctx, participant): unread badge count
//   - Since(ctx, caller, other, cursor): reconciliation backstop
//   - ListConversations(ctx, participant): conversation list view
//
// # Ordering
//
// Persistence happens-before push: Send commits the message to the store
// and only then hands it to the Notifier, so every pushed event is backed
// by durable state readable via Since. Within one conversation, concurrent
// sends are serialized by the store's append transaction; the resulting
// order is arrival order at the store.
//
// # Access control
//
// Authorize gates every operation that targets an existing conversation:
// only the two participants may read or write it, and only a message's
// receiver may mark it read. Failures surface as apperr.Forbidden with no
// mutation performed.
package chat
