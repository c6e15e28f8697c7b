package storelib

import (
	"context"
	"time"

	"golang.org/x/exp/rand"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
)

// SetHeartbeatInterval overrides the heartbeat period. Must be called before
// Start.
func (c *Client) SetHeartbeatInterval(interval time.Duration) {
	if interval > 0 {
		c.heartbeatInterval = interval
	}
}

// heartbeatLoop keeps the worker Alive in the coordinator's registry. The
// interval is jittered so a fleet of workers started together does not
// heartbeat in lockstep.
func (c *Client) heartbeatLoop() {
	defer c.wg.Done()

	for {
		var jitter time.Duration
		if q := int64(c.heartbeatInterval) / 4; q > 0 {
			jitter = time.Duration(rand.Int63n(q))
		}
		select {
		case <-time.After(c.heartbeatInterval + jitter):
			c.sendHeartbeat()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) sendHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()

	resp, err := c.comm.Send(ctx, c.coordinatorAddr, communication.Message{
		Type:    communication.MessageTypeWorkerHeartbeat,
		Payload: communication.WorkerHeartbeat{WorkerID: c.workerID},
	})
	if err != nil {
		c.ls.Warn(log_service.LogEvent{
			Message:  "Heartbeat failed",
			Metadata: map[string]any{"workerId": c.workerID, "error": err.Error()},
		})
		return
	}

	// The coordinator forgot us, likely after a restart. Re-register.
	if resp.Code == communication.CodeNotFound {
		if err := c.register(ctx); err != nil {
			c.ls.Warn(log_service.LogEvent{
				Message:  "Re-registration failed",
				Metadata: map[string]any{"workerId": c.workerID, "error": err.Error()},
			})
		}
	}
}
