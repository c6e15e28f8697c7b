package storelib

import (
	"sync"
	"time"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
)

// Grant is the coordinator's permission for one request to touch its file.
type Grant struct {
	RequestID string
	Path      string
}

// GrantCallback fires when the grant for a previously issued request
// arrives. It runs on its own goroutine.
type GrantCallback func(grant Grant)

// Client is the worker-side facade over the coordination protocol. Requests
// return a request id immediately; grants arrive asynchronously as pushes
// from the coordinator and are matched to registered callbacks.
//
// Grants can arrive before the request call has returned the id to the
// caller; those are buffered in earlyGrants and re-matched on registration.
type Client struct {
	coordinatorAddr string
	workerID        string
	comm            communication.Communicator
	ls              log_service.LogService

	mu          sync.Mutex
	callbacks   map[string]GrantCallback
	earlyGrants map[string]Grant
	outstanding map[string]struct{}
	started     bool

	heartbeatInterval time.Duration
	stopCh            chan struct{}
	wg                sync.WaitGroup
}
