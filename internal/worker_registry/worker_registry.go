package worker_registry

import "time"

// WorkerStatus is the liveness state of a worker process.
type WorkerStatus int

const (
	StatusUnknown WorkerStatus = iota
	StatusAlive
	StatusSuspect
	StatusDown
)

func (s WorkerStatus) String() string {
	switch s {
	case StatusAlive:
		return "Alive"
	case StatusSuspect:
		return "Suspect"
	case StatusDown:
		return "Down"
	default:
		return "Unknown"
	}
}

// Worker is one registered worker process: its id, the address its
// communicator listens on for grant pushes, and its liveness state.
type Worker struct {
	ID       string
	Address  string
	Status   WorkerStatus
	LastSeen time.Time
}

// WorkerRegistry tracks worker membership and liveness. A worker whose
// heartbeats stop is marked Suspect and then Down; the Down transition feeds
// the grant scheduler's disconnection reaping.
type WorkerRegistry interface {
	Register(worker Worker) error
	Heartbeat(workerID string) error
	Deregister(workerID string) error
	GetWorker(workerID string) (Worker, error)
	ListWorkers() ([]Worker, error)
}
