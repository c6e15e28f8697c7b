package storelib

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
)

const (
	defaultHeartbeatInterval = 2 * time.Second
	releaseTimeout           = 5 * time.Second
)

func NewClient(coordinatorAddr string, workerID string, comm communication.Communicator, ls log_service.LogService) *Client {
	if workerID == "" {
		workerID = uuid.New().String()
	}
	if ls == nil {
		ls = log_service.NewNoOpLogService()
	}
	return &Client{
		coordinatorAddr:   coordinatorAddr,
		workerID:          workerID,
		comm:              comm,
		ls:                ls,
		callbacks:         make(map[string]GrantCallback),
		earlyGrants:       make(map[string]Grant),
		outstanding:       make(map[string]struct{}),
		heartbeatInterval: defaultHeartbeatInterval,
	}
}

func (c *Client) WorkerID() string {
	return c.workerID
}

// Start brings up the client's own communicator endpoint (for grant pushes),
// registers the worker with the coordinator and launches the heartbeat loop.
func (c *Client) Start(ctx context.Context) error {
	if err := c.comm.Start(c.handleMessage); err != nil {
		return err
	}

	if err := c.register(ctx); err != nil {
		c.comm.Stop()
		return err
	}

	c.mu.Lock()
	c.started = true
	c.stopCh = make(chan struct{})
	c.mu.Unlock()

	c.wg.Add(1)
	go c.heartbeatLoop()

	c.ls.Info(log_service.LogEvent{
		Message:  "Store client started",
		Metadata: map[string]any{"workerId": c.workerID, "address": c.comm.Address()},
	})
	return nil
}

// Close releases everything this worker still owns, deregisters it and stops
// the communicator.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.ReleaseAllOwned()

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	_, err := c.comm.Send(ctx, c.coordinatorAddr, communication.Message{
		Type:    communication.MessageTypeDeregisterWorker,
		Payload: communication.DeregisterWorkerRequest{WorkerID: c.workerID},
	})
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Failed to deregister worker",
			Metadata: map[string]any{"workerId": c.workerID, "error": err.Error()},
		})
	}

	return c.comm.Stop()
}

func (c *Client) register(ctx context.Context) error {
	resp, err := c.comm.Send(ctx, c.coordinatorAddr, communication.Message{
		Type: communication.MessageTypeRegisterWorker,
		Payload: communication.RegisterWorkerRequest{
			WorkerID: c.workerID,
			Address:  c.comm.Address(),
		},
	})
	if err != nil {
		return err
	}
	if resp.Code != communication.CodeOK {
		return fmt.Errorf("%w: %s", ErrRequestRejected, string(resp.Body))
	}
	return nil
}

// RequestLock asks for an exclusive write hold on the file described by
// metadata. Returns the request id immediately; onGranted fires when the
// coordinator issues the grant.
func (c *Client) RequestLock(ctx context.Context, metadata communication.FileMetadata, onGranted GrantCallback) (string, error) {
	return c.request(ctx, communication.ActionLock, metadata, onGranted)
}

// RequestAccess asks for a read hold. Access and lock currently share the
// same exclusivity semantics; the distinct action exists for hook
// observability.
func (c *Client) RequestAccess(ctx context.Context, metadata communication.FileMetadata, onGranted GrantCallback) (string, error) {
	return c.request(ctx, communication.ActionAccess, metadata, onGranted)
}

// RequestUnlink asks for a hold in order to delete the file.
func (c *Client) RequestUnlink(ctx context.Context, metadata communication.FileMetadata, onGranted GrantCallback) (string, error) {
	return c.request(ctx, communication.ActionUnlink, metadata, onGranted)
}

func (c *Client) request(ctx context.Context, action string, metadata communication.FileMetadata, onGranted GrantCallback) (string, error) {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return "", ErrNotStarted
	}

	resp, err := c.comm.Send(ctx, c.coordinatorAddr, communication.Message{
		Type: communication.MessageTypeFileRequest,
		Payload: communication.FileRequest{
			Action:   action,
			OwnerID:  c.workerID,
			Metadata: metadata,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.Code != communication.CodeOK {
		return "", fmt.Errorf("%w: %s", ErrRequestRejected, string(resp.Body))
	}

	var reply communication.FileRequestResponse
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrRequestRejected, err)
	}

	c.mu.Lock()
	c.outstanding[reply.RequestID] = struct{}{}
	if grant, ok := c.earlyGrants[reply.RequestID]; ok {
		// The grant beat the request response back.
		delete(c.earlyGrants, reply.RequestID)
		c.mu.Unlock()
		go onGranted(grant)
		return reply.RequestID, nil
	}
	c.callbacks[reply.RequestID] = onGranted
	c.mu.Unlock()

	return reply.RequestID, nil
}

// Release frees the grant or pending request. Fire and forget: the
// coordinator's release handling is idempotent, so a lost or duplicate
// release is harmless.
func (c *Client) Release(requestID string) {
	c.mu.Lock()
	delete(c.callbacks, requestID)
	delete(c.earlyGrants, requestID)
	delete(c.outstanding, requestID)
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		_, err := c.comm.Send(ctx, c.coordinatorAddr, communication.Message{
			Type:    communication.MessageTypeFileRelease,
			Payload: communication.FileRelease{RequestID: requestID},
		})
		if err != nil {
			c.ls.Warn(log_service.LogEvent{
				Message:  "Failed to send release",
				Metadata: map[string]any{"requestId": requestID, "error": err.Error()},
			})
		}
	}()
}

// ReleaseAllOwned releases every request this worker still has outstanding.
// Called at worker shutdown; the coordinator's disconnection reaping covers
// the hard-crash case where this never runs.
func (c *Client) ReleaseAllOwned() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.outstanding))
	for id := range c.outstanding {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.Release(id)
	}
}

// AwaitGrant issues a request and blocks until its grant arrives or ctx is
// done. On ctx expiry the pending request is released so nothing leaks.
func (c *Client) AwaitGrant(ctx context.Context, action string, metadata communication.FileMetadata) (Grant, error) {
	ch := make(chan Grant, 1)
	requestID, err := c.request(ctx, action, metadata, func(grant Grant) {
		ch <- grant
	})
	if err != nil {
		return Grant{}, err
	}

	select {
	case grant := <-ch:
		return grant, nil
	case <-ctx.Done():
		c.Release(requestID)
		return Grant{}, fmt.Errorf("%w: %v", ErrNotReady, ctx.Err())
	}
}

func (c *Client) handleMessage(msg communication.Message) (*communication.Response, error) {
	if msg.Type != communication.MessageTypeFileGrant {
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte(fmt.Sprintf("Unexpected message type: %s", msg.Type)),
		}, nil
	}

	grant := msg.Payload.(communication.FileGrant)

	c.mu.Lock()
	callback, ok := c.callbacks[grant.RequestID]
	if ok {
		delete(c.callbacks, grant.RequestID)
	} else {
		c.earlyGrants[grant.RequestID] = Grant{RequestID: grant.RequestID, Path: grant.Path}
	}
	c.mu.Unlock()

	if ok {
		go callback(Grant{RequestID: grant.RequestID, Path: grant.Path})
	}

	return &communication.Response{Code: communication.CodeOK}, nil
}
