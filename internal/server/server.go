package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/grant_service"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/naming_service"
	"github.com/adityaraj/storegate/internal/worker_registry"
)

type TypedHandler struct {
	Handler     func(msg communication.Message) (*communication.Response, error)
	PayloadType reflect.Type
}

// CoordinatorServer wires the grant scheduler, the worker registry and the
// transport together. It dispatches inbound messages to typed handlers and
// pushes grant notifications back to workers.
type CoordinatorServer struct {
	comm communication.Communicator
	gs   grant_service.GrantService
	wr   *worker_registry.InMemoryWorkerRegistry
	ls   log_service.LogService

	typedHandlers map[string]*TypedHandler

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinatorServer(comm communication.Communicator, gs grant_service.GrantService, wr *worker_registry.InMemoryWorkerRegistry, ls log_service.LogService) *CoordinatorServer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &CoordinatorServer{
		comm:          comm,
		gs:            gs,
		wr:            wr,
		ls:            ls,
		typedHandlers: make(map[string]*TypedHandler),
		ctx:           ctx,
		cancel:        cancel,
	}

	s.RegisterTypedHandler(communication.MessageTypeFileRequest, reflect.TypeOf((*communication.FileRequest)(nil)).Elem(), s.HandleFileRequestMessage)
	s.RegisterTypedHandler(communication.MessageTypeFileRelease, reflect.TypeOf((*communication.FileRelease)(nil)).Elem(), s.HandleFileReleaseMessage)
	s.RegisterTypedHandler(communication.MessageTypeRegisterWorker, reflect.TypeOf((*communication.RegisterWorkerRequest)(nil)).Elem(), s.HandleRegisterWorkerMessage)
	s.RegisterTypedHandler(communication.MessageTypeWorkerHeartbeat, reflect.TypeOf((*communication.WorkerHeartbeat)(nil)).Elem(), s.HandleWorkerHeartbeatMessage)
	s.RegisterTypedHandler(communication.MessageTypeDeregisterWorker, reflect.TypeOf((*communication.DeregisterWorkerRequest)(nil)).Elem(), s.HandleDeregisterWorkerMessage)
	s.RegisterTypedHandler(communication.MessageTypeTrackedFiles, reflect.TypeOf((*communication.TrackedFilesRequest)(nil)).Elem(), s.HandleTrackedFilesMessage)
	s.RegisterTypedHandler(communication.MessageTypeListWorkers, reflect.TypeOf((*communication.ListWorkersRequest)(nil)).Elem(), s.HandleListWorkersMessage)

	return s
}

func (s *CoordinatorServer) Start() error {
	s.wr.SetOnWorkerDown(s.reapWorker)

	if err := s.gs.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrServerStartFailed, err)
	}
	if err := s.wr.StartMonitor(); err != nil {
		return fmt.Errorf("%w: %v", ErrServerStartFailed, err)
	}
	if err := s.comm.Start(s.handleMessage); err != nil {
		return fmt.Errorf("%w: %v", ErrServerStartFailed, err)
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Coordinator server started",
		Metadata: map[string]any{"address": s.comm.Address()},
	})
	return nil
}

func (s *CoordinatorServer) Stop() error {
	s.cancel()
	s.wr.StopMonitor()

	var failed error
	if err := s.comm.Stop(); err != nil {
		failed = err
	}
	if err := s.gs.Stop(); err != nil {
		failed = err
	}
	if failed != nil {
		return fmt.Errorf("%w: %v", ErrServerStopFailed, failed)
	}
	return nil
}

func (s *CoordinatorServer) RegisterTypedHandler(msgType string, payloadType reflect.Type, handler func(msg communication.Message) (*communication.Response, error)) {
	s.typedHandlers[msgType] = &TypedHandler{
		Handler:     handler,
		PayloadType: payloadType,
	}
	s.comm.RegisterPayloadType(msgType, payloadType)
}

func (s *CoordinatorServer) handleMessage(msg communication.Message) (*communication.Response, error) {
	typedHandler, exists := s.typedHandlers[msg.Type]
	if !exists {
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte(fmt.Sprintf("No handler registered for message type: %s", msg.Type)),
		}, nil
	}

	if msg.Payload != nil {
		actualType := reflect.TypeOf(msg.Payload)
		if actualType != typedHandler.PayloadType {
			return &communication.Response{
				Code: communication.CodeBadRequest,
				Body: []byte(fmt.Sprintf("Invalid payload type for %s: expected %s, got %s", msg.Type, typedHandler.PayloadType, actualType)),
			}, nil
		}
	}

	return typedHandler.Handler(msg)
}

func (s *CoordinatorServer) HandleFileRequestMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.FileRequest)

	if request.OwnerID == "" {
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte("ownerId is required"),
		}, nil
	}

	requestID, err := s.gs.Request(s.ctx, request.Action, request.OwnerID, request.Metadata)
	if err != nil {
		return s.errorResponse("Failed to enqueue file request", err), nil
	}

	body, err := json.Marshal(communication.FileRequestResponse{RequestID: requestID})
	if err != nil {
		return &communication.Response{Code: communication.CodeInternal}, nil
	}

	return &communication.Response{
		Code: communication.CodeOK,
		Body: body,
	}, nil
}

func (s *CoordinatorServer) HandleFileReleaseMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.FileRelease)

	if err := s.gs.Release(s.ctx, request.RequestID); err != nil {
		return s.errorResponse("Failed to release request", err), nil
	}
	return &communication.Response{Code: communication.CodeOK}, nil
}

func (s *CoordinatorServer) HandleRegisterWorkerMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.RegisterWorkerRequest)

	address := request.Address
	if address == "" {
		address = msg.From
	}

	if err := s.wr.Register(worker_registry.Worker{ID: request.WorkerID, Address: address}); err != nil {
		return s.errorResponse("Failed to register worker", err), nil
	}
	return &communication.Response{Code: communication.CodeOK}, nil
}

func (s *CoordinatorServer) HandleWorkerHeartbeatMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.WorkerHeartbeat)

	if err := s.wr.Heartbeat(request.WorkerID); err != nil {
		if errors.Is(err, worker_registry.ErrWorkerNotFound) {
			// Tells the worker to re-register.
			return &communication.Response{Code: communication.CodeNotFound}, nil
		}
		return s.errorResponse("Failed to record heartbeat", err), nil
	}
	return &communication.Response{Code: communication.CodeOK}, nil
}

func (s *CoordinatorServer) HandleDeregisterWorkerMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.DeregisterWorkerRequest)

	// Cooperative shutdown takes the same reaping path as a crash.
	if err := s.gs.OwnerDisconnected(s.ctx, request.WorkerID); err != nil {
		return s.errorResponse("Failed to reap worker requests", err), nil
	}
	if err := s.wr.Deregister(request.WorkerID); err != nil && !errors.Is(err, worker_registry.ErrWorkerNotFound) {
		return s.errorResponse("Failed to deregister worker", err), nil
	}
	return &communication.Response{Code: communication.CodeOK}, nil
}

func (s *CoordinatorServer) HandleTrackedFilesMessage(msg communication.Message) (*communication.Response, error) {
	files, err := s.gs.TrackedFiles(s.ctx)
	if err != nil {
		return s.errorResponse("Failed to list tracked files", err), nil
	}

	body, err := json.Marshal(communication.TrackedFilesResponse{Files: files})
	if err != nil {
		return &communication.Response{Code: communication.CodeInternal}, nil
	}
	return &communication.Response{
		Code: communication.CodeOK,
		Body: body,
	}, nil
}

func (s *CoordinatorServer) HandleListWorkersMessage(msg communication.Message) (*communication.Response, error) {
	workers, err := s.wr.ListWorkers()
	if err != nil {
		return s.errorResponse("Failed to list workers", err), nil
	}

	infos := make([]communication.WorkerInfo, 0, len(workers))
	for _, w := range workers {
		infos = append(infos, communication.WorkerInfo{
			WorkerID: w.ID,
			Address:  w.Address,
			Status:   w.Status.String(),
		})
	}

	body, err := json.Marshal(communication.ListWorkersResponse{Workers: infos})
	if err != nil {
		return &communication.Response{Code: communication.CodeInternal}, nil
	}
	return &communication.Response{
		Code: communication.CodeOK,
		Body: body,
	}, nil
}

// NotifyGrant pushes a grant to the worker that owns the request. Sends run
// on their own goroutine so the scheduler loop never blocks on the network.
func (s *CoordinatorServer) NotifyGrant(ownerID string, grant communication.FileGrant) {
	worker, err := s.wr.GetWorker(ownerID)
	if err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Grant for unregistered worker",
			Metadata: map[string]any{"workerId": ownerID, "requestId": grant.RequestID},
		})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()

		_, err := s.comm.Send(ctx, worker.Address, communication.Message{
			Type:    communication.MessageTypeFileGrant,
			Payload: grant,
		})
		if err != nil {
			s.ls.Error(log_service.LogEvent{
				Message:  "Failed to deliver grant",
				Metadata: map[string]any{"workerId": ownerID, "requestId": grant.RequestID, "error": err.Error()},
			})
		}
	}()
}

// reapWorker is wired as the worker registry's down callback.
func (s *CoordinatorServer) reapWorker(workerID string) {
	if err := s.gs.OwnerDisconnected(s.ctx, workerID); err != nil {
		s.ls.Error(log_service.LogEvent{
			Message:  "Failed to reap requests of down worker",
			Metadata: map[string]any{"workerId": workerID, "error": err.Error()},
		})
	}
}

func (s *CoordinatorServer) errorResponse(msg string, err error) *communication.Response {
	s.ls.Error(log_service.LogEvent{
		Message:  msg,
		Metadata: map[string]any{"error": err.Error()},
	})

	code := communication.CodeInternal
	switch {
	case errors.Is(err, naming_service.ErrInvalidMetadata), errors.Is(err, naming_service.ErrHookFailed), errors.Is(err, grant_service.ErrUnknownAction), errors.Is(err, worker_registry.ErrEmptyWorkerID):
		code = communication.CodeBadRequest
	case errors.Is(err, grant_service.ErrNotInitialized):
		code = communication.CodeUnavailable
	case errors.Is(err, worker_registry.ErrWorkerNotFound):
		code = communication.CodeNotFound
	}

	return &communication.Response{
		Code: code,
		Body: []byte(err.Error()),
	}
}
