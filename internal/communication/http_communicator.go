package communication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sync"
	"time"

	"github.com/adityaraj/storegate/internal/log_service"
)

type HTTPCommunicator struct {
	listenAddress string
	namespace     string
	httpServer    *http.Server
	handler       MessageHandler
	ls            log_service.LogService

	clientLock   sync.RWMutex
	clients      map[string]*http.Client
	payloadLock  sync.RWMutex
	payloadTypes map[string]reflect.Type
}

func NewHTTPCommunicator(listenAddress string, namespace string, ls log_service.LogService) *HTTPCommunicator {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &HTTPCommunicator{
		listenAddress: listenAddress,
		namespace:     namespace,
		ls:            ls,
		clients:       make(map[string]*http.Client),
		payloadTypes:  defaultPayloadTypes(),
	}
}

func (c *HTTPCommunicator) Address() string {
	return c.listenAddress
}

func (c *HTTPCommunicator) RegisterPayloadType(msgType string, payloadType reflect.Type) {
	c.payloadLock.Lock()
	defer c.payloadLock.Unlock()
	c.payloadTypes[msgType] = payloadType
}

func (c *HTTPCommunicator) messagePath() string {
	return fmt.Sprintf("/%s/message", c.namespace)
}

func (c *HTTPCommunicator) Start(handler MessageHandler) error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Starting HTTP communicator",
		Metadata: map[string]any{"address": c.listenAddress, "namespace": c.namespace},
	})

	c.handler = handler

	mux := http.NewServeMux()
	mux.HandleFunc(c.messagePath(), c.handleHTTPMessage)

	c.httpServer = &http.Server{
		Addr:    c.listenAddress,
		Handler: mux,
	}

	go func() {
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.ls.Error(log_service.LogEvent{
				Message:  "HTTP server error",
				Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
			})
		}
	}()

	return nil
}

func (c *HTTPCommunicator) Stop() error {
	c.ls.Info(log_service.LogEvent{
		Message:  "Stopping HTTP communicator",
		Metadata: map[string]any{"address": c.listenAddress},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.httpServer.Shutdown(ctx); err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to stop HTTP server",
			Metadata: map[string]any{"address": c.listenAddress, "error": err.Error()},
		})
		return ErrServerStopFailed
	}

	return nil
}

func mapFromHTTPCode(code int) StatusCode {
	switch code {
	case http.StatusOK:
		return CodeOK
	case http.StatusBadRequest:
		return CodeBadRequest
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusInternalServerError:
		return CodeInternal
	case http.StatusServiceUnavailable:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

func mapToHTTPCode(code StatusCode) int {
	switch code {
	case CodeOK:
		return http.StatusOK
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInternal:
		return http.StatusInternalServerError
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// wireMessage is the JSON shape of a message on the wire. Payload stays raw
// until the registered type for Type is known.
type wireMessage struct {
	From    string          `json:"from"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (c *HTTPCommunicator) Send(ctx context.Context, to string, msg Message) (*Response, error) {
	c.ls.Debug(log_service.LogEvent{
		Message:  "Sending HTTP message",
		Metadata: map[string]any{"to": to, "type": msg.Type},
	})

	c.clientLock.RLock()
	client, ok := c.clients[to]
	c.clientLock.RUnlock()

	if !ok {
		client = &http.Client{
			Timeout: 5 * time.Second,
		}
		c.clientLock.Lock()
		c.clients[to] = client
		c.clientLock.Unlock()
	}

	var payloadBytes []byte
	if msg.Payload != nil {
		var err error
		payloadBytes, err = json.Marshal(msg.Payload)
		if err != nil {
			c.ls.Error(log_service.LogEvent{
				Message:  "Failed to marshal payload",
				Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
			})
			return nil, ErrPayloadMarshalFailed
		}
	}

	jsonData, err := json.Marshal(wireMessage{
		From:    c.listenAddress,
		Type:    msg.Type,
		Payload: payloadBytes,
	})
	if err != nil {
		return nil, ErrMessageMarshalFailed
	}

	url := fmt.Sprintf("http://%s%s", to, c.messagePath())
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, ErrHTTPRequestCreateFailed
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to send HTTP request",
			Metadata: map[string]any{"to": to, "type": msg.Type, "error": err.Error()},
		})
		return nil, ErrHTTPRequestSendFailed
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ErrHTTPResponseReadFailed
	}

	headers := map[string]string{}
	for key, values := range resp.Header {
		headers[key] = values[0]
	}

	return &Response{
		Code:    mapFromHTTPCode(resp.StatusCode),
		Body:    respBody,
		Headers: headers,
	}, nil
}

// decodePayload turns the raw payload into its registered typed struct.
func (c *HTTPCommunicator) decodePayload(msgType string, raw json.RawMessage) (any, error) {
	c.payloadLock.RLock()
	payloadType, exists := c.payloadTypes[msgType]
	c.payloadLock.RUnlock()

	if !exists {
		return nil, nil
	}
	if len(raw) == 0 {
		return reflect.Zero(payloadType).Interface(), nil
	}

	payloadPtr := reflect.New(payloadType).Interface()
	if err := json.Unmarshal(raw, payloadPtr); err != nil {
		return nil, err
	}
	return reflect.ValueOf(payloadPtr).Elem().Interface(), nil
}

func (c *HTTPCommunicator) handleHTTPMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, ErrHTTPBodyReadFailed.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var rawMsg wireMessage
	if err := json.Unmarshal(body, &rawMsg); err != nil {
		http.Error(w, ErrInvalidJSON.Error(), http.StatusBadRequest)
		return
	}

	if rawMsg.From == "" || rawMsg.Type == "" {
		http.Error(w, ErrMissingRequiredFields.Error(), http.StatusBadRequest)
		return
	}

	c.ls.Debug(log_service.LogEvent{
		Message:  "Received HTTP message",
		Metadata: map[string]any{"from": rawMsg.From, "type": rawMsg.Type},
	})

	msg := Message{
		From: rawMsg.From,
		Type: rawMsg.Type,
	}

	payload, err := c.decodePayload(rawMsg.Type, rawMsg.Payload)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Failed to unmarshal payload",
			Metadata: map[string]any{"from": rawMsg.From, "type": rawMsg.Type, "error": err.Error()},
		})
		http.Error(w, fmt.Sprintf("Invalid payload for message type %s: %v", rawMsg.Type, err), http.StatusBadRequest)
		return
	}
	msg.Payload = payload

	if c.handler == nil {
		http.Error(w, ErrHandlerNotSet.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := c.handler(msg)
	if err != nil {
		c.ls.Error(log_service.LogEvent{
			Message:  "Message handler error",
			Metadata: map[string]any{"from": rawMsg.From, "type": rawMsg.Type, "error": err.Error()},
		})
		http.Error(w, fmt.Sprintf("Handler error: %v", err), http.StatusInternalServerError)
		return
	}

	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(mapToHTTPCode(resp.Code))
	if resp.Body != nil {
		w.Write(resp.Body)
	}
}

var _ Communicator = (*HTTPCommunicator)(nil)
