// Package remote talks to the agent-mail server's MCP endpoint.
package remote

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jc-systemslogiq/agent-mail-cli/internal/errors"
)

const defaultTimeout = 30 * time.Second

// Options configures a Gateway.
type Options struct {
	URL     string
	Token   string
	Timeout time.Duration
	Logger  *slog.Logger

	// ClientName and ClientVersion are sent during initialize.
	ClientName    string
	ClientVersion string
}

// Gateway is a lazily connected MCP client. The first call starts the
// transport and performs the initialize handshake.
type Gateway struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	client *client.Client
}

// New creates a Gateway. No connection is made until the first call.
func New(opts Options) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = "agent-mail"
	}
	if opts.ClientVersion == "" {
		opts.ClientVersion = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{opts: opts, logger: logger}
}

// Close shuts down the transport if it was started.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

func (g *Gateway) connect(ctx context.Context) (*client.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	headers := map[string]string{}
	if g.opts.Token != "" {
		headers["Authorization"] = "Bearer " + g.opts.Token
	}

	c, err := client.NewStreamableHttpClient(g.opts.URL,
		transport.WithHTTPHeaders(headers),
		transport.WithHTTPTimeout(g.opts.Timeout),
	)
	if err != nil {
		return nil, errors.NewTransport(err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	if err := c.Start(ctx); err != nil {
		c.Close()
		return nil, errors.NewTransport(fmt.Errorf("start transport: %w", err))
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    g.opts.ClientName,
		Version: g.opts.ClientVersion,
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, errors.NewTransport(fmt.Errorf("initialize: %w", err))
	}

	g.logger.Debug("connected to remote store", "url", g.opts.URL)
	g.client = c
	return c, nil
}

// Call invokes a tool and returns its decoded JSON payload. args is any
// value that marshals to a JSON object; nil sends no arguments.
func (g *Gateway) Call(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	arguments, err := toArguments(args)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	c, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = arguments

	start := time.Now()
	result, err := c.CallTool(ctx, req)
	g.logger.Debug("remote tool call", "tool", tool, "duration", time.Since(start).Round(time.Millisecond), "ok", err == nil)
	if err != nil {
		return nil, classifyCallError(err)
	}
	if result.IsError {
		return nil, remoteError(result)
	}
	return payload(result)
}

// call decodes the payload into out.
func (g *Gateway) call(ctx context.Context, tool string, args any, out any) error {
	raw, err := g.Call(ctx, tool, args)
	if err != nil {
		return err
	}
	return decode(tool, raw, out)
}

func unexpected(tool string, err error) error {
	return errors.NewRemote(fmt.Sprintf("unexpected %s response: %v", tool, err), nil, nil)
}

func toArguments(args any) (map[string]any, error) {
	if args == nil {
		return map[string]any{}, nil
	}
	if m, ok := args.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	m := map[string]any{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("args must be a JSON object: %w", err)
	}
	return m, nil
}

// payload extracts the result value. Structured content wins; a lone
// {"result": x} wrapper is unwrapped. Otherwise text content is used, and
// several JSON text items become an array.
func payload(result *mcp.CallToolResult) (json.RawMessage, error) {
	if result.StructuredContent != nil {
		b, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		var wrapper map[string]json.RawMessage
		if json.Unmarshal(b, &wrapper) == nil && len(wrapper) == 1 {
			if inner, ok := wrapper["result"]; ok {
				return inner, nil
			}
		}
		return b, nil
	}

	texts := textContents(result.Content)
	switch len(texts) {
	case 0:
		return json.RawMessage("null"), nil
	case 1:
		return textValue(texts[0]), nil
	}

	items := make([]json.RawMessage, len(texts))
	for i, t := range texts {
		items[i] = textValue(t)
	}
	b, err := json.Marshal(items)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return b, nil
}

func textContents(content []mcp.Content) []string {
	var texts []string
	for _, c := range content {
		switch tc := c.(type) {
		case mcp.TextContent:
			texts = append(texts, tc.Text)
		case *mcp.TextContent:
			texts = append(texts, tc.Text)
		}
	}
	return texts
}

// textValue keeps valid JSON as is and quotes anything else.
func textValue(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(s)
	return b
}

// remoteError maps an isError tool result to REMOTE_ERROR.
func remoteError(result *mcp.CallToolResult) error {
	text := strings.Join(textContents(result.Content), "\n")

	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Type    any             `json:"type"`
		Code    any             `json:"code"`
		Data    any             `json:"data"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(text)), &envelope) == nil {
		if len(envelope.Error) > 0 {
			var inner struct {
				Message string `json:"message"`
				Type    any    `json:"type"`
				Code    any    `json:"code"`
				Data    any    `json:"data"`
			}
			if json.Unmarshal(envelope.Error, &inner) == nil {
				return errors.NewRemote(inner.Message, firstNonNil(inner.Type, inner.Code), inner.Data)
			}
			var msg string
			if json.Unmarshal(envelope.Error, &msg) == nil {
				return errors.NewRemote(msg, nil, nil)
			}
		}
		if envelope.Message != "" {
			return errors.NewRemote(envelope.Message, firstNonNil(envelope.Type, envelope.Code), envelope.Data)
		}
	}
	return errors.NewRemote(strings.TrimSpace(text), nil, nil)
}

func firstNonNil(values ...any) any {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// classifyCallError separates transport failures from JSON-RPC errors
// reported by the server.
func classifyCallError(err error) error {
	if isTransportError(err) {
		return errors.NewTransport(err)
	}
	return errors.NewRemote(err.Error(), nil, nil)
}

func isTransportError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	switch {
	case stderrors.As(err, &urlErr), stderrors.As(err, &netErr):
		return true
	case stderrors.Is(err, context.DeadlineExceeded), stderrors.Is(err, context.Canceled):
		return true
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrUnexpectedEOF):
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"request failed with status", "connection refused", "unauthorized", "failed to send request"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
