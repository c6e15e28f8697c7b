package communication

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/adityaraj/storegate/internal/log_service"
)

// InMemoryNetwork connects in-process communicators. Endpoints are keyed by
// namespace and address so independent coordinators can share one network.
type InMemoryNetwork struct {
	mu        sync.RWMutex
	endpoints map[string]*InMemoryCommunicator
}

func NewInMemoryNetwork() *InMemoryNetwork {
	return &InMemoryNetwork{
		endpoints: make(map[string]*InMemoryCommunicator),
	}
}

func endpointKey(namespace, address string) string {
	return fmt.Sprintf("%s/%s", namespace, address)
}

func (n *InMemoryNetwork) NewCommunicator(address string, namespace string, ls log_service.LogService) *InMemoryCommunicator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &InMemoryCommunicator{
		network:      n,
		address:      address,
		namespace:    namespace,
		ls:           ls,
		payloadTypes: defaultPayloadTypes(),
	}
}

func (n *InMemoryNetwork) register(c *InMemoryCommunicator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[endpointKey(c.namespace, c.address)] = c
}

func (n *InMemoryNetwork) deregister(c *InMemoryCommunicator) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.endpoints, endpointKey(c.namespace, c.address))
}

func (n *InMemoryNetwork) lookup(namespace, address string) (*InMemoryCommunicator, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.endpoints[endpointKey(namespace, address)]
	return c, ok
}

// InMemoryCommunicator delivers messages synchronously inside one process.
// Payloads round-trip through JSON so the typed-payload registry is exercised
// the same way as on the wire.
type InMemoryCommunicator struct {
	network   *InMemoryNetwork
	address   string
	namespace string
	ls        log_service.LogService

	mu           sync.RWMutex
	handler      MessageHandler
	started      bool
	payloadTypes map[string]reflect.Type
}

func (c *InMemoryCommunicator) Address() string {
	return c.address
}

func (c *InMemoryCommunicator) RegisterPayloadType(msgType string, payloadType reflect.Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloadTypes[msgType] = payloadType
}

func (c *InMemoryCommunicator) Start(handler MessageHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.started = true
	c.mu.Unlock()

	c.network.register(c)

	c.ls.Debug(log_service.LogEvent{
		Message:  "In-memory communicator started",
		Metadata: map[string]any{"address": c.address, "namespace": c.namespace},
	})
	return nil
}

func (c *InMemoryCommunicator) Stop() error {
	c.network.deregister(c)

	c.mu.Lock()
	c.started = false
	c.mu.Unlock()
	return nil
}

func (c *InMemoryCommunicator) Send(ctx context.Context, to string, msg Message) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, ok := c.network.lookup(c.namespace, to)
	if !ok {
		return nil, ErrUnknownEndpoint
	}

	var payloadBytes []byte
	if msg.Payload != nil {
		var err error
		payloadBytes, err = json.Marshal(msg.Payload)
		if err != nil {
			return nil, ErrPayloadMarshalFailed
		}
	}

	msg.From = c.address
	return target.deliver(msg.From, msg.Type, payloadBytes)
}

func (c *InMemoryCommunicator) deliver(from, msgType string, payloadBytes []byte) (*Response, error) {
	c.mu.RLock()
	handler := c.handler
	started := c.started
	payloadType, typed := c.payloadTypes[msgType]
	c.mu.RUnlock()

	if !started {
		return nil, ErrEndpointNotActive
	}
	if handler == nil {
		return nil, ErrHandlerNotSet
	}

	msg := Message{From: from, Type: msgType}
	if typed {
		if len(payloadBytes) == 0 {
			msg.Payload = reflect.Zero(payloadType).Interface()
		} else {
			payloadPtr := reflect.New(payloadType).Interface()
			if err := json.Unmarshal(payloadBytes, payloadPtr); err != nil {
				return nil, ErrPayloadUnmarshalFailed
			}
			msg.Payload = reflect.ValueOf(payloadPtr).Elem().Interface()
		}
	}

	return handler(msg)
}

var _ Communicator = (*InMemoryCommunicator)(nil)
