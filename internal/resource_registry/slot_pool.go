package resource_registry

// SlotPool bounds the total number of simultaneous grants across all
// resources. Each acquisition is tied to a request id so leaked or duplicate
// releases are detectable. The pool is confined to the scheduler goroutine
// and needs no locking of its own.
type SlotPool struct {
	capacity   int
	acquiredBy map[string]struct{}
}

const DefaultSlotCapacity = 10

func NewSlotPool(capacity int) *SlotPool {
	if capacity <= 0 {
		capacity = DefaultSlotCapacity
	}
	return &SlotPool{
		capacity:   capacity,
		acquiredBy: make(map[string]struct{}),
	}
}

// TryAcquire takes a slot for the given request id if one is free.
func (p *SlotPool) TryAcquire(requestID string) bool {
	if _, holds := p.acquiredBy[requestID]; holds {
		return false
	}
	if len(p.acquiredBy) >= p.capacity {
		return false
	}
	p.acquiredBy[requestID] = struct{}{}
	return true
}

// Release frees the slot held by the given request id, reporting whether the
// id actually held one. Releasing an unknown id is a no-op.
func (p *SlotPool) Release(requestID string) bool {
	if _, holds := p.acquiredBy[requestID]; !holds {
		return false
	}
	delete(p.acquiredBy, requestID)
	return true
}

func (p *SlotPool) InUse() int {
	return len(p.acquiredBy)
}

func (p *SlotPool) Capacity() int {
	return p.capacity
}
