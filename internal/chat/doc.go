// Package chat merges two asynchronous message sources into one consistent
// view per open chat: the remote store's live change feed and locally
// originated optimistic sends.
//
// A Session owns all mutable state for one room. Remote change batches and
// local submissions are applied under a single lock, so the message map has
// no concurrent writers. Outgoing sends run on a strictly sequential FIFO
// queue; a failed job marks its message Failed and the queue moves on.
//
// Decryption failures never escape the session: a message whose key cannot
// be unwrapped renders as a literal placeholder instead. Placeholders are
// never written to the message cache.
package chat
