// Package consensus implements the replica state coordinator for a single
// member of a Raft configuration: term and role tracking, the pending
// operations queue, commit-index advancement, configuration transitions,
// and the dual leader-lease mechanism that makes up-to-date reads and
// writes safe across leadership changes.
//
// The coordinator is the single authority for this replica's view of
// consensus. It does not persist the log, transport messages between
// peers, or run the application state machine; the log and the metadata
// store are reached through the Log and MetadataStore interfaces, while
// transport.go only defines message structs for a caller's own transport
// and ApplyPipeline is a contract the Coordinator itself never calls.
package consensus
