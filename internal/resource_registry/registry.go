package resource_registry

// QueueFactory builds the wait queue for a newly tracked resource. The
// default produces FIFO queues; the scheduler's queue-policy hook can
// substitute another implementation per resource.
type QueueFactory func(path string) WaitQueue

// Registry holds the coordinator's view of every tracked file: its state,
// plus reverse indexes from request id to path and from owner id to its
// request ids (the disconnection reaper's lookup). The registry is owned by
// the scheduler goroutine exclusively and performs no I/O.
type Registry struct {
	states    map[string]*ResourceState
	byRequest map[string]string
	byOwner   map[string]map[string]struct{}
	newQueue  QueueFactory
}

func NewRegistry(newQueue QueueFactory) *Registry {
	if newQueue == nil {
		newQueue = func(string) WaitQueue { return NewFIFOQueue() }
	}
	return &Registry{
		states:    make(map[string]*ResourceState),
		byRequest: make(map[string]string),
		byOwner:   make(map[string]map[string]struct{}),
		newQueue:  newQueue,
	}
}

// StateFor returns the state for a path, creating it on first reference.
func (r *Registry) StateFor(path string) *ResourceState {
	state, ok := r.states[path]
	if !ok {
		state = &ResourceState{
			Path:  path,
			Queue: r.newQueue(path),
		}
		r.states[path] = state
	}
	return state
}

// Lookup returns the state for a path without creating it.
func (r *Registry) Lookup(path string) (*ResourceState, bool) {
	state, ok := r.states[path]
	return state, ok
}

// PathOf resolves a request id to the path it was enqueued under.
func (r *Registry) PathOf(requestID string) (string, bool) {
	path, ok := r.byRequest[requestID]
	return path, ok
}

// Enqueue appends the request to its resource's wait queue and records the
// reverse indexes.
func (r *Registry) Enqueue(req *PendingRequest) *ResourceState {
	state := r.StateFor(req.Path)
	state.Queue.Push(req)

	r.byRequest[req.ID] = req.Path
	owned, ok := r.byOwner[req.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		r.byOwner[req.OwnerID] = owned
	}
	owned[req.ID] = struct{}{}

	return state
}

// Drop removes all bookkeeping for a request id, whether it is active or
// still queued. The resource state itself is left for the caller to advance
// and garbage collect.
func (r *Registry) Drop(req *PendingRequest) {
	delete(r.byRequest, req.ID)
	if owned, ok := r.byOwner[req.OwnerID]; ok {
		delete(owned, req.ID)
		if len(owned) == 0 {
			delete(r.byOwner, req.OwnerID)
		}
	}
}

// OwnedRequests returns the ids of every request, active or queued, that
// belongs to the given owner.
func (r *Registry) OwnedRequests(ownerID string) []string {
	owned, ok := r.byOwner[ownerID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	return ids
}

// Collect deletes the state for a path once it has no holder and no waiters.
// Reports whether the state was removed.
func (r *Registry) Collect(path string) bool {
	state, ok := r.states[path]
	if !ok || !state.Idle() {
		return false
	}
	delete(r.states, path)
	return true
}

// TrackedStates returns every state currently holding a grant or with a
// non-empty queue.
func (r *Registry) TrackedStates() []*ResourceState {
	out := make([]*ResourceState, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, state)
	}
	return out
}

// Len returns the number of tracked states.
func (r *Registry) Len() int {
	return len(r.states)
}
