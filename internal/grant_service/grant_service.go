package grant_service

import (
	"context"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/resource_registry"
)

// GrantService is the coordinating side of the file coordination protocol.
// It serializes all lock-state mutations, enforces the global concurrency
// ceiling and emits grant notifications through a GrantNotifier.
type GrantService interface {
	Start() error
	Stop() error

	// Request resolves the file identity, enqueues a pending request and
	// returns its id. The grant itself is delivered asynchronously.
	Request(ctx context.Context, action string, ownerID string, metadata communication.FileMetadata) (string, error)

	// Release frees the grant or queued request with the given id and
	// advances wait queues. Unknown ids are logged and ignored.
	Release(ctx context.Context, requestID string) error

	// OwnerDisconnected implicitly releases every grant and removes every
	// queued request belonging to the owner. This is what keeps a crashed
	// worker from stalling its queues forever.
	OwnerDisconnected(ctx context.Context, ownerID string) error

	// TrackedFiles lists every file currently holding a grant or with a
	// non-empty wait queue.
	TrackedFiles(ctx context.Context) ([]communication.TrackedFile, error)
}

// GrantNotifier delivers grant notifications to workers. Implementations
// must not block: the scheduler invokes them from its event loop.
type GrantNotifier interface {
	NotifyGrant(ownerID string, grant communication.FileGrant)
}

// QueuePolicyHook substitutes the wait-queue implementation for a resource.
// Returning the given queue keeps the default FIFO policy.
type QueuePolicyHook func(defaultQueue resource_registry.WaitQueue, path string) resource_registry.WaitQueue

// ReleaseContext describes a completed release for observation hooks.
type ReleaseContext struct {
	RequestID string
	OwnerID   string
	Path      string
	Action    string
	Implicit  bool // true when released by the disconnection reaper
}

// ReleaseObserver is notified after every successful release. Read-only.
type ReleaseObserver func(rc ReleaseContext)
