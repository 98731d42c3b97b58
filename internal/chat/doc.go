// Package chat implements the routing core of the server.
//
// Directory resolves unordered user pairs to conversations, creating them
// lazily and idempotently. Service orchestrates the boundary operations:
// start-conversation joins the requesting connection to the conversation's
// channel, and send-message persists through the store before broadcasting
// to the channel's current members via the hub.
//
// Delivery semantics are at-most-once per connected member: there is no
// durable retry queue and no redelivery on late join.
package chat
