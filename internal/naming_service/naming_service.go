package naming_service

import "github.com/adityaraj/storegate/internal/communication"

// ResolveContext carries request details into the naming hook.
type ResolveContext struct {
	OwnerID  string
	Action   string
	Metadata communication.FileMetadata
}

// NamingHook can rewrite the candidate path before the identity is
// registered, e.g. to inject a worker-specific directory. It is invoked once
// per resolution.
type NamingHook func(candidatePath string, ctx ResolveContext) (string, error)

// NamingService derives the stable path identity of a coordinated file from
// request metadata.
type NamingService interface {
	Resolve(ownerID string, action string, metadata communication.FileMetadata) (string, error)
}
