// Package alert renders vault deltas, account fills, order updates and
// subscriber lifecycle events into Batches: ordered MarkdownV2 fragments
// for the chat channel plus a plain-text rendering for logs and audit files.
//
// Everything here is pure. Delivery lives in package delivery.
package alert
