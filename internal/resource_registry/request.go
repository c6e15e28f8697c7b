package resource_registry

import (
	"time"

	"github.com/adityaraj/storegate/internal/communication"
)

// PendingRequest is one worker's ask for a grant on a coordinated file. It is
// created on enqueue, becomes the active holder when granted and is removed
// on release. It is never mutated after being granted.
type PendingRequest struct {
	ID         string
	OwnerID    string
	Action     string
	Metadata   communication.FileMetadata
	Path       string
	EnqueuedAt time.Time
}

// ResourceState tracks one file identity: its current holder and the ordered
// queue of requests waiting for it. At most one request is active at a time.
type ResourceState struct {
	Path   string
	Active *PendingRequest
	Queue  WaitQueue
}

// Busy reports whether the resource currently has an active holder.
func (rs *ResourceState) Busy() bool {
	return rs.Active != nil
}

// Idle reports whether the state can be garbage collected.
func (rs *ResourceState) Idle() bool {
	return rs.Active == nil && rs.Queue.Len() == 0
}
