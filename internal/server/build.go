package server

import (
	"time"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/grant_service"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/naming_service"
	"github.com/adityaraj/storegate/internal/worker_registry"
)

// BuildOptions carries the pieces Build assembles into a coordinator. Hooks
// are optional extension points registered by plugin code at startup.
type BuildOptions struct {
	Config *CoordinatorConfig
	Comm   communication.Communicator
	Logger log_service.LogService

	NamingHook      naming_service.NamingHook
	QueuePolicyHook grant_service.QueuePolicyHook
	ReleaseObserver grant_service.ReleaseObserver
}

// grantRelay breaks the construction cycle between the grant service (which
// needs a notifier) and the server (which needs the grant service).
type grantRelay struct {
	server *CoordinatorServer
}

func (r *grantRelay) NotifyGrant(ownerID string, grant communication.FileGrant) {
	r.server.NotifyGrant(ownerID, grant)
}

// Build wires naming, scheduling, worker tracking and transport into a
// ready-to-start coordinator server.
func Build(opts BuildOptions) *CoordinatorServer {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultCoordinatorConfig()
	}
	ls := opts.Logger
	if ls == nil {
		ls = log_service.NewNoOpLogService()
	}

	ns := naming_service.NewDefaultNamingService(cfg.BaseDir, ls)
	if opts.NamingHook != nil {
		ns.SetHook(opts.NamingHook)
	}

	relay := &grantRelay{}
	gs := grant_service.NewDefaultGrantService(ns, relay, cfg.ConcurrencyLimit, ls)
	if opts.QueuePolicyHook != nil {
		gs.SetQueuePolicyHook(opts.QueuePolicyHook)
	}
	if opts.ReleaseObserver != nil {
		gs.SetReleaseObserver(opts.ReleaseObserver)
	}

	wr := worker_registry.NewInMemoryWorkerRegistry(ls)
	wr.SetTimeouts(
		time.Duration(cfg.Heartbeat.SuspectAfterSeconds)*time.Second,
		time.Duration(cfg.Heartbeat.DownAfterSeconds)*time.Second,
		0,
	)

	srv := NewCoordinatorServer(opts.Comm, gs, wr, ls)
	relay.server = srv
	return srv
}
