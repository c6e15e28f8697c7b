package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
)

type coordinatorFixture struct {
	server  *CoordinatorServer
	network *communication.InMemoryNetwork
	worker  communication.Communicator
	grants  chan communication.FileGrant
}

// startCoordinator boots a coordinator over the in-memory network plus one
// worker endpoint that collects pushed grants.
func startCoordinator(t *testing.T, limit int) *coordinatorFixture {
	t.Helper()

	ls := log_service.NewNoOpLogService()
	network := communication.NewInMemoryNetwork()

	cfg := DefaultCoordinatorConfig()
	cfg.ListenAddress = "coordinator:7410"
	cfg.BaseDir = "/base"
	cfg.ConcurrencyLimit = limit

	srv := Build(BuildOptions{
		Config: cfg,
		Comm:   network.NewCommunicator(cfg.ListenAddress, cfg.Namespace, ls),
		Logger: ls,
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	grants := make(chan communication.FileGrant, 16)
	worker := network.NewCommunicator("worker:9001", cfg.Namespace, ls)
	if err := worker.Start(func(msg communication.Message) (*communication.Response, error) {
		if msg.Type == communication.MessageTypeFileGrant {
			grants <- msg.Payload.(communication.FileGrant)
		}
		return &communication.Response{Code: communication.CodeOK}, nil
	}); err != nil {
		t.Fatalf("worker Start() error = %v", err)
	}
	t.Cleanup(func() { worker.Stop() })

	return &coordinatorFixture{
		server:  srv,
		network: network,
		worker:  worker,
		grants:  grants,
	}
}

func (f *coordinatorFixture) send(t *testing.T, msgType string, payload any) *communication.Response {
	t.Helper()
	resp, err := f.worker.Send(context.Background(), "coordinator:7410", communication.Message{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		t.Fatalf("Send(%s) error = %v", msgType, err)
	}
	return resp
}

func (f *coordinatorFixture) register(t *testing.T, workerID string) {
	t.Helper()
	resp := f.send(t, communication.MessageTypeRegisterWorker, communication.RegisterWorkerRequest{
		WorkerID: workerID,
		Address:  "worker:9001",
	})
	if resp.Code != communication.CodeOK {
		t.Fatalf("register response = %s: %s", resp.Code, resp.Body)
	}
}

func (f *coordinatorFixture) requestFile(t *testing.T, workerID, name string) string {
	t.Helper()
	resp := f.send(t, communication.MessageTypeFileRequest, communication.FileRequest{
		Action:  communication.ActionLock,
		OwnerID: workerID,
		Metadata: communication.FileMetadata{
			Extension: ".json",
			Name:      name,
			Scope:     communication.ScopeGlobal,
		},
	})
	if resp.Code != communication.CodeOK {
		t.Fatalf("file request response = %s: %s", resp.Code, resp.Body)
	}
	var parsed communication.FileRequestResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		t.Fatalf("unmarshal file request response: %v", err)
	}
	if parsed.RequestID == "" {
		t.Fatal("file request response missing request id")
	}
	return parsed.RequestID
}

func (f *coordinatorFixture) awaitGrant(t *testing.T) communication.FileGrant {
	t.Helper()
	select {
	case g := <-f.grants:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a grant push")
		return communication.FileGrant{}
	}
}

func TestCoordinatorGrantRoundTrip(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")

	id := f.requestFile(t, "w1", "report")

	grant := f.awaitGrant(t)
	if grant.RequestID != id {
		t.Errorf("grant request id = %s, want %s", grant.RequestID, id)
	}
	if grant.Path == "" {
		t.Error("grant carries empty path")
	}

	resp := f.send(t, communication.MessageTypeFileRelease, communication.FileRelease{RequestID: id})
	if resp.Code != communication.CodeOK {
		t.Errorf("release response = %s: %s", resp.Code, resp.Body)
	}
}

func TestCoordinatorQueuesContendedFile(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")
	f.register(t, "w2")

	first := f.requestFile(t, "w1", "contended")
	if g := f.awaitGrant(t); g.RequestID != first {
		t.Fatalf("first grant = %s, want %s", g.RequestID, first)
	}

	second := f.requestFile(t, "w2", "contended")

	select {
	case g := <-f.grants:
		t.Fatalf("second request granted while first still held: %s", g.RequestID)
	case <-time.After(50 * time.Millisecond):
	}

	f.send(t, communication.MessageTypeFileRelease, communication.FileRelease{RequestID: first})

	if g := f.awaitGrant(t); g.RequestID != second {
		t.Errorf("grant after release = %s, want %s", g.RequestID, second)
	}
}

func TestCoordinatorRejectsBadRequests(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")

	tests := []struct {
		name     string
		msgType  string
		payload  any
		wantCode communication.StatusCode
	}{
		{
			name:    "missing owner id",
			msgType: communication.MessageTypeFileRequest,
			payload: communication.FileRequest{
				Action:   communication.ActionLock,
				Metadata: communication.FileMetadata{Extension: ".json", Name: "a"},
			},
			wantCode: communication.CodeBadRequest,
		},
		{
			name:    "unknown action",
			msgType: communication.MessageTypeFileRequest,
			payload: communication.FileRequest{
				Action:   "borrow",
				OwnerID:  "w1",
				Metadata: communication.FileMetadata{Extension: ".json", Name: "a"},
			},
			wantCode: communication.CodeBadRequest,
		},
		{
			name:    "invalid metadata",
			msgType: communication.MessageTypeFileRequest,
			payload: communication.FileRequest{
				Action:   communication.ActionLock,
				OwnerID:  "w1",
				Metadata: communication.FileMetadata{Name: "no-extension"},
			},
			wantCode: communication.CodeBadRequest,
		},
		{
			name:     "register with empty worker id",
			msgType:  communication.MessageTypeRegisterWorker,
			payload:  communication.RegisterWorkerRequest{},
			wantCode: communication.CodeBadRequest,
		},
		{
			name:     "heartbeat from unknown worker",
			msgType:  communication.MessageTypeWorkerHeartbeat,
			payload:  communication.WorkerHeartbeat{WorkerID: "ghost"},
			wantCode: communication.CodeNotFound,
		},
		{
			name:     "unregistered message type",
			msgType:  "time_travel",
			payload:  nil,
			wantCode: communication.CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.send(t, tt.msgType, tt.payload)
			if resp.Code != tt.wantCode {
				t.Errorf("response code = %s, want %s (%s)", resp.Code, tt.wantCode, resp.Body)
			}
		})
	}
}

func TestCoordinatorDeregisterReapsGrants(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")
	f.register(t, "w2")

	first := f.requestFile(t, "w1", "contended")
	if g := f.awaitGrant(t); g.RequestID != first {
		t.Fatalf("first grant = %s, want %s", g.RequestID, first)
	}
	second := f.requestFile(t, "w2", "contended")

	resp := f.send(t, communication.MessageTypeDeregisterWorker, communication.DeregisterWorkerRequest{WorkerID: "w1"})
	if resp.Code != communication.CodeOK {
		t.Fatalf("deregister response = %s: %s", resp.Code, resp.Body)
	}

	// w1's grant was reaped, so w2 advances without an explicit release.
	if g := f.awaitGrant(t); g.RequestID != second {
		t.Errorf("grant after deregister = %s, want %s", g.RequestID, second)
	}
}

func TestCoordinatorTrackedFiles(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")

	id := f.requestFile(t, "w1", "report")
	f.awaitGrant(t)

	resp := f.send(t, communication.MessageTypeTrackedFiles, communication.TrackedFilesRequest{})
	if resp.Code != communication.CodeOK {
		t.Fatalf("tracked files response = %s: %s", resp.Code, resp.Body)
	}

	var tracked communication.TrackedFilesResponse
	if err := json.Unmarshal(resp.Body, &tracked); err != nil {
		t.Fatalf("unmarshal tracked files: %v", err)
	}
	if len(tracked.Files) != 1 {
		t.Fatalf("tracked files = %v, want one entry", tracked.Files)
	}
	if tracked.Files[0].HolderID != id || tracked.Files[0].HolderOwner != "w1" {
		t.Errorf("tracked file = %+v, want holder %s owned by w1", tracked.Files[0], id)
	}
}

func TestCoordinatorListWorkers(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")
	f.register(t, "w2")

	resp := f.send(t, communication.MessageTypeListWorkers, communication.ListWorkersRequest{})
	if resp.Code != communication.CodeOK {
		t.Fatalf("list workers response = %s: %s", resp.Code, resp.Body)
	}

	var listed communication.ListWorkersResponse
	if err := json.Unmarshal(resp.Body, &listed); err != nil {
		t.Fatalf("unmarshal worker list: %v", err)
	}
	if len(listed.Workers) != 2 {
		t.Fatalf("worker list = %v, want 2 workers", listed.Workers)
	}
	for _, w := range listed.Workers {
		if w.Status != "Alive" {
			t.Errorf("worker %s status = %s, want Alive", w.WorkerID, w.Status)
		}
	}
}

func TestCoordinatorHeartbeat(t *testing.T) {
	f := startCoordinator(t, 10)
	f.register(t, "w1")

	resp := f.send(t, communication.MessageTypeWorkerHeartbeat, communication.WorkerHeartbeat{WorkerID: "w1"})
	if resp.Code != communication.CodeOK {
		t.Errorf("heartbeat response = %s: %s", resp.Code, resp.Body)
	}
}
