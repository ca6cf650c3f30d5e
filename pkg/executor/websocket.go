package executor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/orneryd/nornicogm/pkg/pool"
)

// MimeJSON is the serializer requested from Gremlin Server.
const MimeJSON = "application/json"

// Gremlin Server response status codes.
const (
	StatusSuccess        = 200
	StatusNoContent      = 204
	StatusPartialContent = 206
	StatusAuthenticate   = 407
)

// WebSocketOptions configures the websocket executor.
type WebSocketOptions struct {
	// URL of the Gremlin Server, e.g. ws://localhost:8182/gremlin.
	URL      string
	Username string
	Password string
	// Timeout bounds dialing and, when the context has no deadline, each
	// request.
	Timeout time.Duration
	Header  http.Header
	Logger  *zap.Logger
}

// WebSocket speaks the Gremlin Server websocket sub-protocol. Requests are
// serialized over one lazily dialed connection, which is dropped after any
// transport error and redialed on the next Send.
type WebSocket struct {
	opts   WebSocketOptions
	dialer *websocket.Dialer
	log    *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket creates a websocket executor. No connection is made until
// the first Send.
func NewWebSocket(opts WebSocketOptions) (*WebSocket, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("websocket executor: url is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &WebSocket{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.Timeout,
		},
		log: log,
	}, nil
}

type wsRequest struct {
	RequestID string         `json:"requestId"`
	Op        string         `json:"op"`
	Processor string         `json:"processor"`
	Args      map[string]any `json:"args"`
}

// Send evaluates the script and collects every partial response.
func (w *WebSocket) Send(ctx context.Context, req *Request) (resp *Response, err error) {
	requestID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "gremlin-ws-send",
		trace.WithAttributes(attribute.Int(TraceAttributeScriptLength, len(req.Script))),
		trace.WithAttributes(attribute.Int(TraceAttributeParamCount, len(req.Params))),
		trace.WithAttributes(attribute.String(TraceAttributeRequestID, requestID)),
	)
	defer func() { recordAndEnd(err, span) }()

	w.mu.Lock()
	defer w.mu.Unlock()

	conn, err := w.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok && w.opts.Timeout > 0 {
		deadline = time.Now().Add(w.opts.Timeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	resp, err = w.roundTrip(conn, requestID, req)
	if err != nil {
		if _, isServer := err.(*ServerError); !isServer {
			w.drop()
		}
		return nil, err
	}
	return resp, nil
}

func (w *WebSocket) roundTrip(conn *websocket.Conn, requestID string, req *Request) (*Response, error) {
	err := w.write(conn, wsRequest{
		RequestID: requestID,
		Op:        "eval",
		Args: map[string]any{
			"gremlin":  req.Script,
			"bindings": req.Params,
			"language": DefaultLanguage,
		},
	})
	if err != nil {
		return nil, err
	}

	resp := &Response{RequestID: requestID}
	authenticated := false
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %s (%w)", err.Error(), ErrRequest)
		}

		var msg gremlinResponse
		if err := decodeJSON(payload, &msg); err != nil {
			return nil, fmt.Errorf("failed to decode response: %s (%w)", err.Error(), ErrBadResponse)
		}
		if msg.RequestID != "" && msg.RequestID != requestID {
			w.log.Warn("dropping response for unknown request", zap.String("requestId", msg.RequestID))
			continue
		}

		switch msg.Status.Code {
		case StatusSuccess, StatusPartialContent:
			resp.Data = append(resp.Data, asRows(Normalize(msg.Result.Data))...)
			if msg.Status.Code == StatusSuccess {
				return resp, nil
			}
		case StatusNoContent:
			return resp, nil
		case StatusAuthenticate:
			if authenticated || w.opts.Username == "" {
				return nil, fmt.Errorf("%w: server requires credentials", ErrAuth)
			}
			authenticated = true
			if err := w.write(conn, w.authRequest(requestID)); err != nil {
				return nil, err
			}
		default:
			if msg.Status.Code == http.StatusUnauthorized {
				return nil, fmt.Errorf("%w: %s", ErrAuth, msg.Status.Message)
			}
			return nil, &ServerError{Code: msg.Status.Code, Message: msg.Status.Message}
		}
	}
}

// authRequest answers a 407 challenge with SASL PLAIN credentials.
func (w *WebSocket) authRequest(requestID string) wsRequest {
	plain := "\x00" + w.opts.Username + "\x00" + w.opts.Password
	return wsRequest{
		RequestID: requestID,
		Op:        "authentication",
		Args: map[string]any{
			"sasl":          base64.StdEncoding.EncodeToString([]byte(plain)),
			"saslMechanism": "PLAIN",
		},
	}
}

// write frames a request: one length byte, the mime type, then the JSON body.
func (w *WebSocket) write(conn *websocket.Conn, msg wsRequest) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode request: %s (%w)", err.Error(), ErrRequest)
	}

	frame := pool.GetByteBuffer()
	defer func() { pool.PutByteBuffer(frame) }()
	frame = append(frame, byte(len(MimeJSON)))
	frame = append(frame, MimeJSON...)
	frame = append(frame, body...)

	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
	}
	return nil
}

func (w *WebSocket) connect(ctx context.Context) (*websocket.Conn, error) {
	if w.conn != nil {
		return w.conn, nil
	}
	conn, _, err := w.dialer.DialContext(ctx, w.opts.URL, w.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %s (%w)", w.opts.URL, err.Error(), ErrRequest)
	}
	w.log.Debug("gremlin websocket connected", zap.String("url", w.opts.URL))
	w.conn = conn
	return conn, nil
}

func (w *WebSocket) drop() {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}

// Close closes the connection, if any.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	w.drop()
	return err
}
