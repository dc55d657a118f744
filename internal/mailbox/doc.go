// ABOUTME: Package mailbox is the boundary to the external email source.
// ABOUTME: The hub polls it; plugin handlers query and mutate through it.

// Package mailbox hides where emails come from. The runtime only needs a
// snapshot of recent messages, single-message lookup and a mark-read
// mutation; the store-backed implementation stands in for the IMAP fetcher,
// which lives outside this system and writes into the same table.
package mailbox
