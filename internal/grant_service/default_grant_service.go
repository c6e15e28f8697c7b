package grant_service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/naming_service"
	"github.com/adityaraj/storegate/internal/resource_registry"
)

// DefaultGrantService runs the scheduler as a single goroutine consuming
// operations from a channel. Registry and slot pool are only ever touched
// from that goroutine, so the coordinator needs no locks around its own
// bookkeeping.
type DefaultGrantService struct {
	ns       naming_service.NamingService
	notifier GrantNotifier
	ls       log_service.LogService

	registry *resource_registry.Registry
	slots    *resource_registry.SlotPool

	queueHook       QueuePolicyHook
	releaseObserver ReleaseObserver

	ops  chan func()
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewDefaultGrantService(ns naming_service.NamingService, notifier GrantNotifier, concurrencyLimit int, ls log_service.LogService) *DefaultGrantService {
	gs := &DefaultGrantService{
		ns:       ns,
		notifier: notifier,
		ls:       ls,
		slots:    resource_registry.NewSlotPool(concurrencyLimit),
	}
	gs.registry = resource_registry.NewRegistry(gs.buildQueue)
	return gs
}

// SetQueuePolicyHook installs the wait-queue substitution hook. Must be
// called before Start.
func (gs *DefaultGrantService) SetQueuePolicyHook(hook QueuePolicyHook) {
	gs.queueHook = hook
}

// SetReleaseObserver installs the release observation hook. Must be called
// before Start.
func (gs *DefaultGrantService) SetReleaseObserver(observer ReleaseObserver) {
	gs.releaseObserver = observer
}

func (gs *DefaultGrantService) buildQueue(path string) resource_registry.WaitQueue {
	queue := resource_registry.NewFIFOQueue()
	if gs.queueHook != nil {
		if custom := gs.queueHook(queue, path); custom != nil {
			return custom
		}
	}
	return queue
}

func (gs *DefaultGrantService) Start() error {
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.started {
		return ErrAlreadyStarted
	}

	gs.ops = make(chan func())
	gs.done = make(chan struct{})
	gs.started = true

	gs.wg.Add(1)
	go gs.run()

	gs.ls.Info(log_service.LogEvent{
		Message:  "Grant service started",
		Metadata: map[string]any{"concurrencyLimit": gs.slots.Capacity()},
	})
	return nil
}

func (gs *DefaultGrantService) Stop() error {
	gs.mu.Lock()
	if !gs.started {
		gs.mu.Unlock()
		return nil
	}
	gs.started = false
	close(gs.done)
	gs.mu.Unlock()

	gs.wg.Wait()
	return nil
}

func (gs *DefaultGrantService) run() {
	defer gs.wg.Done()
	for {
		select {
		case op := <-gs.ops:
			op()
		case <-gs.done:
			return
		}
	}
}

// dispatch runs op on the scheduler goroutine and waits for it to finish.
func (gs *DefaultGrantService) dispatch(ctx context.Context, op func()) error {
	gs.mu.Lock()
	if !gs.started {
		gs.mu.Unlock()
		return ErrNotInitialized
	}
	done := gs.done
	gs.mu.Unlock()

	ran := make(chan struct{})
	wrapped := func() {
		op()
		close(ran)
	}

	select {
	case gs.ops <- wrapped:
	case <-done:
		return ErrNotInitialized
	case <-ctx.Done():
		return ctx.Err()
	}

	// ops is unbuffered, so a completed send means the scheduler goroutine
	// holds the op and will run it to completion even if Stop races in.
	<-ran
	return nil
}

func (gs *DefaultGrantService) Request(ctx context.Context, action string, ownerID string, metadata communication.FileMetadata) (string, error) {
	switch action {
	case communication.ActionLock, communication.ActionAccess, communication.ActionUnlink:
	default:
		return "", ErrUnknownAction
	}

	path, err := gs.ns.Resolve(ownerID, action, metadata)
	if err != nil {
		// Resolution failures never reach the queue.
		return "", err
	}

	req := &resource_registry.PendingRequest{
		ID:         uuid.New().String(),
		OwnerID:    ownerID,
		Action:     action,
		Metadata:   metadata,
		Path:       path,
		EnqueuedAt: time.Now(),
	}

	if err := gs.dispatch(ctx, func() {
		state := gs.registry.Enqueue(req)
		gs.ls.Debug(log_service.LogEvent{
			Message:  "File request enqueued",
			Metadata: map[string]any{"requestId": req.ID, "path": path, "owner": ownerID, "action": action},
		})
		gs.advance(state)
	}); err != nil {
		return "", err
	}

	return req.ID, nil
}

func (gs *DefaultGrantService) Release(ctx context.Context, requestID string) error {
	return gs.dispatch(ctx, func() {
		gs.release(requestID, false)
		gs.advanceAll()
	})
}

func (gs *DefaultGrantService) OwnerDisconnected(ctx context.Context, ownerID string) error {
	return gs.dispatch(ctx, func() {
		ids := gs.registry.OwnedRequests(ownerID)
		if len(ids) == 0 {
			return
		}
		gs.ls.Info(log_service.LogEvent{
			Message:  "Reaping requests of disconnected owner",
			Metadata: map[string]any{"owner": ownerID, "requests": len(ids)},
		})
		for _, id := range ids {
			gs.release(id, true)
		}
		gs.advanceAll()
	})
}

func (gs *DefaultGrantService) TrackedFiles(ctx context.Context) ([]communication.TrackedFile, error) {
	var files []communication.TrackedFile
	err := gs.dispatch(ctx, func() {
		states := gs.registry.TrackedStates()
		files = make([]communication.TrackedFile, 0, len(states))
		for _, state := range states {
			tf := communication.TrackedFile{
				Path:        state.Path,
				QueuedCount: state.Queue.Len(),
			}
			if state.Active != nil {
				tf.HolderID = state.Active.ID
				tf.HolderOwner = state.Active.OwnerID
			}
			files = append(files, tf)
		}
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// release frees one request, active or queued. Unknown ids are an expected
// race with duplicate or late releases and only log a warning.
func (gs *DefaultGrantService) release(requestID string, implicit bool) {
	path, ok := gs.registry.PathOf(requestID)
	if !ok {
		gs.ls.Warn(log_service.LogEvent{
			Message:  "Release for unknown request",
			Metadata: map[string]any{"requestId": requestID},
		})
		return
	}

	state, ok := gs.registry.Lookup(path)
	if !ok {
		gs.ls.Warn(log_service.LogEvent{
			Message:  "Release for untracked path",
			Metadata: map[string]any{"requestId": requestID, "path": path},
		})
		return
	}

	var released *resource_registry.PendingRequest
	if state.Active != nil && state.Active.ID == requestID {
		released = state.Active
		state.Active = nil
		gs.slots.Release(requestID)
	} else if queued := state.Queue.Remove(requestID); queued != nil {
		// Released while still queued: treat as cancellation.
		released = queued
	}

	if released == nil {
		return
	}

	gs.registry.Drop(released)
	gs.registry.Collect(path)

	gs.ls.Debug(log_service.LogEvent{
		Message:  "Request released",
		Metadata: map[string]any{"requestId": requestID, "path": path, "implicit": implicit},
	})

	if gs.releaseObserver != nil {
		gs.releaseObserver(ReleaseContext{
			RequestID: requestID,
			OwnerID:   released.OwnerID,
			Path:      path,
			Action:    released.Action,
			Implicit:  implicit,
		})
	}
}

// advance grants the head of the wait queue when the resource is free and a
// global slot is available.
func (gs *DefaultGrantService) advance(state *resource_registry.ResourceState) {
	if state.Busy() {
		return
	}

	next := state.Queue.Peek()
	if next == nil {
		return
	}
	if !gs.slots.TryAcquire(next.ID) {
		return
	}

	state.Queue.Pop()
	state.Active = next

	gs.ls.Debug(log_service.LogEvent{
		Message:  "Grant issued",
		Metadata: map[string]any{"requestId": next.ID, "path": next.Path, "owner": next.OwnerID, "inUse": gs.slots.InUse()},
	})

	gs.notifier.NotifyGrant(next.OwnerID, communication.FileGrant{
		RequestID: next.ID,
		Path:      next.Path,
	})
}

// advanceAll attempts to advance every tracked state. Called after releases,
// when freed slots may unblock queues on unrelated resources.
func (gs *DefaultGrantService) advanceAll() {
	for _, state := range gs.registry.TrackedStates() {
		gs.advance(state)
	}
}

var _ GrantService = (*DefaultGrantService)(nil)
