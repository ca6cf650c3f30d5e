package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultLanguage is the script language sent with every request.
const DefaultLanguage = "gremlin-groovy"

// HTTPOptions configures the HTTP executor.
type HTTPOptions struct {
	// URL of the Gremlin Server HTTP endpoint, e.g. http://localhost:8182/gremlin.
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	// Transport is wrapped with otelhttp. Nil means http.DefaultTransport.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// HTTP posts scripts to a Gremlin Server HTTP endpoint.
type HTTP struct {
	url      string
	username string
	password string
	client   *http.Client
	log      *zap.Logger
}

// NewHTTP creates an HTTP executor.
func NewHTTP(opts HTTPOptions) (*HTTP, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("http executor: url is required")
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTP{
		url:      opts.URL,
		username: opts.Username,
		password: opts.Password,
		client: &http.Client{
			Transport: otelhttp.NewTransport(transport),
			Timeout:   opts.Timeout,
		},
		log: log,
	}, nil
}

type httpRequestBody struct {
	Gremlin  string         `json:"gremlin"`
	Bindings map[string]any `json:"bindings,omitempty"`
	Language string         `json:"language"`
}

type gremlinStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type gremlinResponse struct {
	RequestID string        `json:"requestId"`
	Status    gremlinStatus `json:"status"`
	Result    struct {
		Data any `json:"data"`
	} `json:"result"`
	// Set by Gremlin Server on HTTP-level failures.
	Message string `json:"message"`
}

// Send posts the script and returns normalized rows.
func (h *HTTP) Send(ctx context.Context, req *Request) (resp *Response, err error) {
	ctx, span := tracer.Start(ctx, "gremlin-http-send",
		trace.WithAttributes(attribute.Int(TraceAttributeScriptLength, len(req.Script))),
		trace.WithAttributes(attribute.Int(TraceAttributeParamCount, len(req.Params))),
	)
	defer func() { recordAndEnd(err, span) }()

	body, err := json.Marshal(httpRequestBody{
		Gremlin:  req.Script,
		Bindings: req.Params,
		Language: DefaultLanguage,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %s (%w)", err.Error(), ErrRequest)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %s (%w)", err.Error(), ErrRequest)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if h.username != "" {
		httpReq.SetBasicAuth(h.username, h.password)
	}

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %s (%w)", err.Error(), ErrRequest)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %s (%w)", err.Error(), ErrBadResponse)
	}

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("%w: status %d", ErrAuth, httpResp.StatusCode)
	}

	var decoded gremlinResponse
	if err = decodeJSON(respBody, &decoded); err != nil {
		if httpResp.StatusCode >= http.StatusBadRequest {
			return nil, &ServerError{Code: httpResp.StatusCode, Message: string(respBody)}
		}
		return nil, fmt.Errorf("failed to decode response: %s (%w)", err.Error(), ErrBadResponse)
	}

	if httpResp.StatusCode >= http.StatusBadRequest {
		msg := decoded.Message
		if msg == "" {
			msg = decoded.Status.Message
		}
		return nil, &ServerError{Code: httpResp.StatusCode, Message: msg}
	}
	if decoded.Status.Code >= http.StatusBadRequest {
		return nil, &ServerError{Code: decoded.Status.Code, Message: decoded.Status.Message}
	}

	span.SetAttributes(attribute.String(TraceAttributeRequestID, decoded.RequestID))
	h.log.Debug("gremlin http response",
		zap.String("requestId", decoded.RequestID),
		zap.Int("status", httpResp.StatusCode))

	return &Response{
		RequestID: decoded.RequestID,
		Data:      asRows(Normalize(decoded.Result.Data)),
	}, nil
}

// decodeJSON keeps integers exact.
func decodeJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func asRows(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		return val
	}
	return []any{v}
}
