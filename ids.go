package consensus

import "github.com/google/uuid"

// NewReplicaUUID generates a random identifier suitable for a PeerRecord's
// UUID field, for callers that do not already have a stable identity
// scheme for their replicas.
func NewReplicaUUID() string {
	return uuid.NewString()
}

// NewClientRequestID generates a random idempotency key for a client
// write, for callers that do not already supply their own.
func NewClientRequestID() string {
	return uuid.NewString()
}
