package communication

import (
	"context"
	"reflect"
)

// StatusCode classifies the outcome of a handled message.
type StatusCode string

const (
	CodeOK          StatusCode = "OK"
	CodeBadRequest  StatusCode = "BAD_REQUEST"
	CodeNotFound    StatusCode = "NOT_FOUND"
	CodeInternal    StatusCode = "INTERNAL"
	CodeUnavailable StatusCode = "UNAVAILABLE"
)

// Message is the envelope exchanged between workers and the coordinator.
// Payload is a typed struct on the receiving side; the communicator
// deserializes it using the registered payload type for Type.
type Message struct {
	From    string
	Type    string
	Payload any
}

type Response struct {
	Code    StatusCode
	Body    []byte
	Headers map[string]string
}

type MessageHandler func(msg Message) (*Response, error)

type Communicator interface {
	Start(handler MessageHandler) error
	Stop() error
	Send(ctx context.Context, to string, msg Message) (*Response, error)
	Address() string
	RegisterPayloadType(msgType string, payloadType reflect.Type)
}

// DefaultNamespace scopes message endpoints so independent coordinators can
// share one transport without collision.
const DefaultNamespace = "storegate"

// defaultPayloadTypes returns the payload registry for the coordination
// protocol. Custom message types can be added via RegisterPayloadType.
func defaultPayloadTypes() map[string]reflect.Type {
	return map[string]reflect.Type{
		MessageTypeFileRequest:      reflect.TypeOf((*FileRequest)(nil)).Elem(),
		MessageTypeFileGrant:        reflect.TypeOf((*FileGrant)(nil)).Elem(),
		MessageTypeFileRelease:      reflect.TypeOf((*FileRelease)(nil)).Elem(),
		MessageTypeRegisterWorker:   reflect.TypeOf((*RegisterWorkerRequest)(nil)).Elem(),
		MessageTypeWorkerHeartbeat:  reflect.TypeOf((*WorkerHeartbeat)(nil)).Elem(),
		MessageTypeDeregisterWorker: reflect.TypeOf((*DeregisterWorkerRequest)(nil)).Elem(),
		MessageTypeTrackedFiles:     reflect.TypeOf((*TrackedFilesRequest)(nil)).Elem(),
		MessageTypeListWorkers:      reflect.TypeOf((*ListWorkersRequest)(nil)).Elem(),
	}
}
