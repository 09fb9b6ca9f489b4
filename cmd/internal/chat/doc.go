// Package chat maintains the canonical state of conversations, messages, and
// per-user read receipts.
//
// It contains the three core operations of the server:
//   - Directory: resolve-or-create for direct conversations, group creation
//   - Ingestor: message append + conversation recency bump
//   - Reconciler: idempotent, monotonic read-receipt reconciliation
//
// All coordination is delegated to the Store's atomic per-record primitives;
// handlers hold no shared mutable state between requests.
package chat
