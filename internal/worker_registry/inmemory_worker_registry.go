package worker_registry

import (
	"sync"
	"time"

	"github.com/adityaraj/storegate/internal/log_service"
)

const (
	DefaultSuspectAfter  = 5 * time.Second
	DefaultDownAfter     = 15 * time.Second
	DefaultCheckInterval = 1 * time.Second
)

// InMemoryWorkerRegistry keeps membership in a map and runs a monitor
// goroutine that ages workers out when their heartbeats stop. OnWorkerDown
// fires exactly once per worker, after which the worker is removed.
type InMemoryWorkerRegistry struct {
	mu      sync.RWMutex
	workers map[string]*Worker
	ls      log_service.LogService

	suspectAfter  time.Duration
	downAfter     time.Duration
	checkInterval time.Duration

	onWorkerDown func(workerID string)

	stopCh  chan struct{}
	stopped sync.WaitGroup
	started bool
}

func NewInMemoryWorkerRegistry(ls log_service.LogService) *InMemoryWorkerRegistry {
	return &InMemoryWorkerRegistry{
		workers:       make(map[string]*Worker),
		ls:            ls,
		suspectAfter:  DefaultSuspectAfter,
		downAfter:     DefaultDownAfter,
		checkInterval: DefaultCheckInterval,
	}
}

// SetTimeouts overrides the liveness thresholds. Must be called before
// StartMonitor.
func (wr *InMemoryWorkerRegistry) SetTimeouts(suspectAfter, downAfter, checkInterval time.Duration) {
	if suspectAfter > 0 {
		wr.suspectAfter = suspectAfter
	}
	if downAfter > 0 {
		wr.downAfter = downAfter
	}
	if checkInterval > 0 {
		wr.checkInterval = checkInterval
	}
}

// SetOnWorkerDown installs the callback fired when a worker stops
// heartbeating. Must be called before StartMonitor.
func (wr *InMemoryWorkerRegistry) SetOnWorkerDown(fn func(workerID string)) {
	wr.onWorkerDown = fn
}

func (wr *InMemoryWorkerRegistry) Register(worker Worker) error {
	if worker.ID == "" {
		return ErrEmptyWorkerID
	}

	wr.mu.Lock()
	defer wr.mu.Unlock()

	worker.Status = StatusAlive
	worker.LastSeen = time.Now()
	wr.workers[worker.ID] = &worker

	wr.ls.Info(log_service.LogEvent{
		Message:  "Worker registered",
		Metadata: map[string]any{"workerId": worker.ID, "address": worker.Address},
	})
	return nil
}

func (wr *InMemoryWorkerRegistry) Heartbeat(workerID string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	worker, ok := wr.workers[workerID]
	if !ok {
		return ErrWorkerNotFound
	}
	worker.LastSeen = time.Now()
	worker.Status = StatusAlive
	return nil
}

func (wr *InMemoryWorkerRegistry) Deregister(workerID string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	if _, ok := wr.workers[workerID]; !ok {
		return ErrWorkerNotFound
	}
	delete(wr.workers, workerID)

	wr.ls.Info(log_service.LogEvent{
		Message:  "Worker deregistered",
		Metadata: map[string]any{"workerId": workerID},
	})
	return nil
}

func (wr *InMemoryWorkerRegistry) GetWorker(workerID string) (Worker, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	worker, ok := wr.workers[workerID]
	if !ok {
		return Worker{}, ErrWorkerNotFound
	}
	return *worker, nil
}

func (wr *InMemoryWorkerRegistry) ListWorkers() ([]Worker, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	out := make([]Worker, 0, len(wr.workers))
	for _, worker := range wr.workers {
		out = append(out, *worker)
	}
	return out, nil
}

// StartMonitor launches the liveness check loop.
func (wr *InMemoryWorkerRegistry) StartMonitor() error {
	wr.mu.Lock()
	if wr.started {
		wr.mu.Unlock()
		return ErrMonitorStarted
	}
	wr.started = true
	wr.stopCh = make(chan struct{})
	wr.mu.Unlock()

	wr.stopped.Add(1)
	go wr.monitor()
	return nil
}

func (wr *InMemoryWorkerRegistry) StopMonitor() {
	wr.mu.Lock()
	if !wr.started {
		wr.mu.Unlock()
		return
	}
	wr.started = false
	close(wr.stopCh)
	wr.mu.Unlock()

	wr.stopped.Wait()
}

func (wr *InMemoryWorkerRegistry) monitor() {
	defer wr.stopped.Done()

	ticker := time.NewTicker(wr.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			wr.checkLiveness()
		case <-wr.stopCh:
			return
		}
	}
}

func (wr *InMemoryWorkerRegistry) checkLiveness() {
	now := time.Now()
	var down []string

	wr.mu.Lock()
	for id, worker := range wr.workers {
		silence := now.Sub(worker.LastSeen)
		switch {
		case silence >= wr.downAfter:
			down = append(down, id)
			delete(wr.workers, id)
		case silence >= wr.suspectAfter && worker.Status == StatusAlive:
			worker.Status = StatusSuspect
			wr.ls.Warn(log_service.LogEvent{
				Message:  "Worker missed heartbeats",
				Metadata: map[string]any{"workerId": id, "silence": silence.String()},
			})
		}
	}
	wr.mu.Unlock()

	// Callback outside the lock: it typically calls back into the scheduler.
	for _, id := range down {
		wr.ls.Warn(log_service.LogEvent{
			Message:  "Worker is down",
			Metadata: map[string]any{"workerId": id},
		})
		if wr.onWorkerDown != nil {
			wr.onWorkerDown(id)
		}
	}
}

var _ WorkerRegistry = (*InMemoryWorkerRegistry)(nil)
