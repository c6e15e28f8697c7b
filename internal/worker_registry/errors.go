package worker_registry

import "errors"

var (
	ErrWorkerNotFound = errors.New("worker not found")
	ErrEmptyWorkerID  = errors.New("worker id must not be empty")
	ErrMonitorStarted = errors.New("liveness monitor already started")
)
