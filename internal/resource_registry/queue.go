package resource_registry

// WaitQueue orders the pending requests of one resource. The default is
// strict FIFO; a queue-policy hook may substitute a different ordering per
// resource class.
type WaitQueue interface {
	Len() int
	Push(req *PendingRequest)
	// Peek returns the next request to grant without removing it, or nil
	// when empty. Pop must return the same request Peek reported.
	Peek() *PendingRequest
	// Pop removes and returns the next request to grant, or nil when empty.
	Pop() *PendingRequest
	// Remove deletes and returns the request with the given id, or nil when
	// absent. Used when an owner disconnects with requests still queued.
	Remove(requestID string) *PendingRequest
	// Items returns the queued requests in grant order, for diagnostics.
	Items() []*PendingRequest
}

// NewFIFOQueue returns the default wait queue: first enqueued, first granted.
func NewFIFOQueue() WaitQueue {
	return &fifoQueue{}
}

type fifoQueue struct {
	reqs []*PendingRequest
}

func (q *fifoQueue) Len() int {
	return len(q.reqs)
}

func (q *fifoQueue) Push(req *PendingRequest) {
	q.reqs = append(q.reqs, req)
}

func (q *fifoQueue) Peek() *PendingRequest {
	if len(q.reqs) == 0 {
		return nil
	}
	return q.reqs[0]
}

func (q *fifoQueue) Pop() *PendingRequest {
	if len(q.reqs) == 0 {
		return nil
	}
	req := q.reqs[0]
	q.reqs[0] = nil // avoid holding the reference
	q.reqs = q.reqs[1:]
	return req
}

func (q *fifoQueue) Remove(requestID string) *PendingRequest {
	for i, req := range q.reqs {
		if req.ID == requestID {
			q.reqs = append(q.reqs[:i], q.reqs[i+1:]...)
			return req
		}
	}
	return nil
}

func (q *fifoQueue) Items() []*PendingRequest {
	out := make([]*PendingRequest, len(q.reqs))
	copy(out, q.reqs)
	return out
}
