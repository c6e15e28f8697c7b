package storelib

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/grant_service"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/server"
)

// cluster boots a coordinator over the in-memory network and hands out
// connected clients.
type cluster struct {
	network   *communication.InMemoryNetwork
	ls        log_service.LogService
	namespace string

	mu       sync.Mutex
	releases []grant_service.ReleaseContext

	nextPort int
}

func newCluster(t *testing.T, limit int, configure ...func(cfg *server.CoordinatorConfig)) *cluster {
	t.Helper()

	cl := &cluster{
		network:   communication.NewInMemoryNetwork(),
		ls:        log_service.NewNoOpLogService(),
		namespace: communication.DefaultNamespace,
		nextPort:  9001,
	}

	cfg := server.DefaultCoordinatorConfig()
	cfg.ListenAddress = "coordinator:7410"
	cfg.BaseDir = "/base"
	cfg.ConcurrencyLimit = limit
	for _, fn := range configure {
		fn(cfg)
	}

	srv := server.Build(server.BuildOptions{
		Config: cfg,
		Comm:   cl.network.NewCommunicator(cfg.ListenAddress, cl.namespace, cl.ls),
		Logger: cl.ls,
		ReleaseObserver: func(rc grant_service.ReleaseContext) {
			cl.mu.Lock()
			cl.releases = append(cl.releases, rc)
			cl.mu.Unlock()
		},
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("coordinator Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return cl
}

func (cl *cluster) newClient(t *testing.T, workerID string) *Client {
	t.Helper()

	cl.mu.Lock()
	addr := fmt.Sprintf("worker:%d", cl.nextPort)
	cl.nextPort++
	cl.mu.Unlock()

	comm := cl.network.NewCommunicator(addr, cl.namespace, cl.ls)
	client := NewClient("coordinator:7410", workerID, comm, cl.ls)
	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("client Start() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func (cl *cluster) releaseCount(path string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	count := 0
	for _, rc := range cl.releases {
		if rc.Path == path {
			count++
		}
	}
	return count
}

func (cl *cluster) waitReleaseCount(t *testing.T, path string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for cl.releaseCount(path) < want {
		if time.Now().After(deadline) {
			t.Fatalf("release count for %s = %d, want %d", path, cl.releaseCount(path), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sharedMetadata(name string) communication.FileMetadata {
	return communication.FileMetadata{Extension: ".json", Name: name, Scope: communication.ScopeGlobal}
}

func TestClientAwaitGrant(t *testing.T) {
	cl := newCluster(t, 10)
	client := cl.newClient(t, "w1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	grant, err := client.AwaitGrant(ctx, communication.ActionLock, sharedMetadata("report"))
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}
	if grant.RequestID == "" || grant.Path == "" {
		t.Errorf("grant = %+v, want request id and path", grant)
	}

	client.Release(grant.RequestID)
	cl.waitReleaseCount(t, grant.Path, 1)
}

func TestClientRequestBeforeStart(t *testing.T) {
	cl := newCluster(t, 10)

	comm := cl.network.NewCommunicator("worker:9999", cl.namespace, cl.ls)
	client := NewClient("coordinator:7410", "cold", comm, cl.ls)

	_, err := client.RequestLock(context.Background(), sharedMetadata("report"), func(Grant) {})
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("RequestLock() error = %v, want %v", err, ErrNotStarted)
	}
}

func TestClientGeneratedWorkerID(t *testing.T) {
	cl := newCluster(t, 10)

	comm := cl.network.NewCommunicator("worker:9998", cl.namespace, cl.ls)
	client := NewClient("coordinator:7410", "", comm, cl.ls)
	if client.WorkerID() == "" {
		t.Error("empty worker id was not replaced with a generated one")
	}
}

func TestClientContendedLockSerializes(t *testing.T) {
	cl := newCluster(t, 10)
	a := cl.newClient(t, "w1")
	b := cl.newClient(t, "w2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	held, err := a.AwaitGrant(ctx, communication.ActionLock, sharedMetadata("contended"))
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}

	granted := make(chan Grant, 1)
	if _, err := b.RequestLock(ctx, sharedMetadata("contended"), func(g Grant) {
		granted <- g
	}); err != nil {
		t.Fatalf("RequestLock() error = %v", err)
	}

	select {
	case g := <-granted:
		t.Fatalf("second lock granted while first held: %+v", g)
	case <-time.After(50 * time.Millisecond):
	}

	a.Release(held.RequestID)

	select {
	case g := <-granted:
		if g.Path != held.Path {
			t.Errorf("second grant path = %s, want %s", g.Path, held.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second lock never granted after release")
	}
}

func TestClientConcurrencyCeiling(t *testing.T) {
	cl := newCluster(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Three distinct files from three workers, but only two slots.
	clients := []*Client{
		cl.newClient(t, "w1"),
		cl.newClient(t, "w2"),
		cl.newClient(t, "w3"),
	}

	granted := make(chan Grant, 3)
	var requestIDs []string
	for i, client := range clients {
		name := sharedMetadata("file-" + client.WorkerID())
		id, err := client.RequestLock(ctx, name, func(g Grant) {
			granted <- g
		})
		if err != nil {
			t.Fatalf("RequestLock(%d) error = %v", i, err)
		}
		requestIDs = append(requestIDs, id)
	}

	var first Grant
	for i := 0; i < 2; i++ {
		select {
		case g := <-granted:
			if i == 0 {
				first = g
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of 2 grants arrived within the ceiling", i)
		}
	}

	select {
	case g := <-granted:
		t.Fatalf("third grant %s exceeded the concurrency ceiling", g.RequestID)
	case <-time.After(50 * time.Millisecond):
	}

	// Find the client holding the first grant and release it.
	for i, id := range requestIDs {
		if id == first.RequestID {
			clients[i].Release(id)
		}
	}

	select {
	case <-granted:
	case <-time.After(2 * time.Second):
		t.Fatal("queued request never granted after a slot freed")
	}
}

func TestClientNamingVisibility(t *testing.T) {
	cl := newCluster(t, 10)
	a := cl.newClient(t, "w1")
	b := cl.newClient(t, "w2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	shared := sharedMetadata("report")

	ga, err := a.AwaitGrant(ctx, communication.ActionLock, shared)
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}
	a.Release(ga.RequestID)
	cl.waitReleaseCount(t, ga.Path, 1)

	gb, err := b.AwaitGrant(ctx, communication.ActionAccess, shared)
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}
	b.Release(gb.RequestID)

	// Same explicit global name resolves both workers to one path.
	if ga.Path != gb.Path {
		t.Errorf("shared name resolved to %s and %s", ga.Path, gb.Path)
	}

	// Worker scope keeps the same name apart per worker.
	scoped := communication.FileMetadata{Extension: ".json", Name: "report", Scope: communication.ScopeWorker}

	sa, err := a.AwaitGrant(ctx, communication.ActionLock, scoped)
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}
	a.Release(sa.RequestID)

	sb, err := b.AwaitGrant(ctx, communication.ActionLock, scoped)
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}
	b.Release(sb.RequestID)

	if sa.Path == sb.Path {
		t.Errorf("worker-scoped name collided on %s", sa.Path)
	}
}

func TestClientAwaitGrantContextExpiry(t *testing.T) {
	cl := newCluster(t, 10)
	a := cl.newClient(t, "w1")
	b := cl.newClient(t, "w2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	held, err := a.AwaitGrant(ctx, communication.ActionLock, sharedMetadata("contended"))
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shortCancel()

	_, err = b.AwaitGrant(shortCtx, communication.ActionLock, sharedMetadata("contended"))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("AwaitGrant() error = %v, want %v", err, ErrNotReady)
	}

	// The expired wait released its queued request. Wait for the
	// cancellation to land before queueing again.
	cl.waitReleaseCount(t, held.Path, 1)
	granted := make(chan Grant, 1)
	if _, err := b.RequestLock(ctx, sharedMetadata("contended"), func(g Grant) {
		granted <- g
	}); err != nil {
		t.Fatalf("RequestLock() error = %v", err)
	}

	a.Release(held.RequestID)

	select {
	case <-granted:
	case <-time.After(2 * time.Second):
		t.Fatal("fresh request never granted after release")
	}
}

func TestClientTinyHeartbeatInterval(t *testing.T) {
	cl := newCluster(t, 10)

	comm := cl.network.NewCommunicator("worker:9200", cl.namespace, cl.ls)
	client := NewClient("coordinator:7410", "rapid", comm, cl.ls)
	client.SetHeartbeatInterval(time.Nanosecond)

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("client Start() error = %v", err)
	}

	// The jitterless sub-quantum interval must not panic the heartbeat loop.
	time.Sleep(20 * time.Millisecond)

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestClientCrashRecovery(t *testing.T) {
	if testing.Short() {
		t.Skip("liveness timeouts take seconds")
	}

	cl := newCluster(t, 10, func(cfg *server.CoordinatorConfig) {
		cfg.Heartbeat.SuspectAfterSeconds = 1
		cfg.Heartbeat.DownAfterSeconds = 2
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// The crasher never heartbeats, so the coordinator ages it out.
	crasherComm := cl.network.NewCommunicator("worker:9100", cl.namespace, cl.ls)
	crasher := NewClient("coordinator:7410", "crasher", crasherComm, cl.ls)
	crasher.SetHeartbeatInterval(time.Hour)
	if err := crasher.Start(ctx); err != nil {
		t.Fatalf("crasher Start() error = %v", err)
	}
	t.Cleanup(func() { crasher.Close() })

	held, err := crasher.AwaitGrant(ctx, communication.ActionLock, sharedMetadata("contended"))
	if err != nil {
		t.Fatalf("AwaitGrant() error = %v", err)
	}

	survivor := cl.newClient(t, "survivor")
	granted := make(chan Grant, 1)
	if _, err := survivor.RequestLock(ctx, sharedMetadata("contended"), func(g Grant) {
		granted <- g
	}); err != nil {
		t.Fatalf("RequestLock() error = %v", err)
	}

	// Simulate the crash: the endpoint vanishes and no release is sent.
	crasherComm.Stop()

	select {
	case g := <-granted:
		if g.Path != held.Path {
			t.Errorf("reaped grant path = %s, want %s", g.Path, held.Path)
		}
	case <-time.After(8 * time.Second):
		t.Fatal("survivor never granted after the holder crashed")
	}
}
