package communication

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adityaraj/storegate/internal/log_service"
)

func TestHTTPCodeMapping(t *testing.T) {
	tests := []struct {
		code     StatusCode
		httpCode int
	}{
		{CodeOK, http.StatusOK},
		{CodeBadRequest, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnavailable, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		if got := mapToHTTPCode(tt.code); got != tt.httpCode {
			t.Errorf("mapToHTTPCode(%s) = %d, want %d", tt.code, got, tt.httpCode)
		}
		if got := mapFromHTTPCode(tt.httpCode); got != tt.code {
			t.Errorf("mapFromHTTPCode(%d) = %s, want %s", tt.httpCode, got, tt.code)
		}
	}

	if got := mapFromHTTPCode(http.StatusTeapot); got != CodeInternal {
		t.Errorf("mapFromHTTPCode(teapot) = %s, want %s", got, CodeInternal)
	}
	if got := mapToHTTPCode(StatusCode("BOGUS")); got != http.StatusInternalServerError {
		t.Errorf("mapToHTTPCode(bogus) = %d, want %d", got, http.StatusInternalServerError)
	}
}

func postWireMessage(t *testing.T, c *HTTPCommunicator, wire wireMessage) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal wire message: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, c.messagePath(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c.handleHTTPMessage(rec, req)
	return rec
}

func TestHTTPCommunicatorHandleMessage(t *testing.T) {
	ls := log_service.NewNoOpLogService()

	tests := []struct {
		name       string
		wire       wireMessage
		handler    MessageHandler
		wantStatus int
		checkFn    func(t *testing.T, received Message)
	}{
		{
			name: "dispatches typed payload",
			wire: wireMessage{
				From:    "worker:9001",
				Type:    MessageTypeFileRelease,
				Payload: json.RawMessage(`{"requestId":"r1"}`),
			},
			handler: func(msg Message) (*Response, error) {
				return &Response{Code: CodeOK}, nil
			},
			wantStatus: http.StatusOK,
			checkFn: func(t *testing.T, received Message) {
				payload, ok := received.Payload.(FileRelease)
				if !ok {
					t.Fatalf("payload type = %T, want FileRelease", received.Payload)
				}
				if payload.RequestID != "r1" {
					t.Errorf("payload request id = %s, want r1", payload.RequestID)
				}
			},
		},
		{
			name: "missing from field",
			wire: wireMessage{
				Type: MessageTypeWorkerHeartbeat,
			},
			handler: func(msg Message) (*Response, error) {
				return &Response{Code: CodeOK}, nil
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "malformed payload for registered type",
			wire: wireMessage{
				From:    "worker:9001",
				Type:    MessageTypeFileRelease,
				Payload: json.RawMessage(`"not an object"`),
			},
			handler: func(msg Message) (*Response, error) {
				return &Response{Code: CodeOK}, nil
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "handler response code is mapped",
			wire: wireMessage{
				From:    "worker:9001",
				Type:    MessageTypeWorkerHeartbeat,
				Payload: json.RawMessage(`{"workerId":"ghost"}`),
			},
			handler: func(msg Message) (*Response, error) {
				return &Response{Code: CodeNotFound}, nil
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewHTTPCommunicator("coordinator:7410", "", ls)

			var received Message
			c.handler = func(msg Message) (*Response, error) {
				received = msg
				return tt.handler(msg)
			}

			rec := postWireMessage(t, c, tt.wire)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.checkFn != nil {
				tt.checkFn(t, received)
			}
		})
	}
}

func TestHTTPCommunicatorRejectsGet(t *testing.T) {
	c := NewHTTPCommunicator("coordinator:7410", "", log_service.NewNoOpLogService())
	c.handler = func(msg Message) (*Response, error) {
		return &Response{Code: CodeOK}, nil
	}

	req := httptest.NewRequest(http.MethodGet, c.messagePath(), nil)
	rec := httptest.NewRecorder()
	c.handleHTTPMessage(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHTTPCommunicatorNamespacePath(t *testing.T) {
	ls := log_service.NewNoOpLogService()

	c := NewHTTPCommunicator("coordinator:7410", "", ls)
	if got := c.messagePath(); got != "/storegate/message" {
		t.Errorf("messagePath() = %s, want /storegate/message", got)
	}

	c = NewHTTPCommunicator("coordinator:7410", "blue", ls)
	if got := c.messagePath(); got != "/blue/message" {
		t.Errorf("messagePath() = %s, want /blue/message", got)
	}
}
