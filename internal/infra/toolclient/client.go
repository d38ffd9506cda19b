// Package toolclient speaks the HTTP contract every remote tool server
// implements: GET /tools, GET /tools/{name}/schema, and
// POST /tools/{name}/execute.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"

	"toolmesh/internal/domain"
)

const maxResponseBytes = 8 << 20

type Config struct {
	Transport http.RoundTripper
	Logger    *zap.Logger
}

type Option func(*Config)

// WithTransport sets a custom transport (e.g., for tests or tracing).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Config) {
		c.Transport = rt
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

type Client struct {
	http   *http.Client
	logger *zap.Logger
}

// New builds a client. Per-call deadlines come from the caller's context;
// the underlying client carries no timeout of its own.
func New(opts ...Option) *Client {
	cfg := &Config{
		Transport: http.DefaultTransport,
		Logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &Client{
		http:   &http.Client{Transport: cfg.Transport},
		logger: cfg.Logger,
	}
}

// rawToolPayload matches the wire shape of a discovery entry. Type hints
// arrive either as plain strings or as {"type": "..."} objects.
type rawToolPayload struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Parameters  map[string]json.RawMessage `json:"parameters"`
}

func (c *Client) ListTools(ctx context.Context, endpoint string) ([]domain.RawTool, error) {
	var payload []rawToolPayload
	if err := c.getJSON(ctx, toolsURL(endpoint), &payload); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]domain.RawTool, 0, len(payload))
	for _, entry := range payload {
		if entry.Name == "" {
			continue
		}
		params := make(map[string]string, len(entry.Parameters))
		for name, hint := range entry.Parameters {
			params[name] = decodeTypeHint(hint)
		}
		tools = append(tools, domain.RawTool{
			Name:        entry.Name,
			Description: entry.Description,
			Parameters:  params,
		})
	}
	return tools, nil
}

func (c *Client) FetchSchema(ctx context.Context, endpoint, tool string) (*jsonschema.Schema, error) {
	var schema jsonschema.Schema
	url := fmt.Sprintf("%s/tools/%s/schema", trimEndpoint(endpoint), tool)
	if err := c.getJSON(ctx, url, &schema); err != nil {
		return nil, fmt.Errorf("fetch schema for %s: %w", tool, err)
	}
	return &schema, nil
}

// Execute posts the parameter object and decodes the result envelope. A
// 2xx response carrying an "error" field is a soft failure: the server is
// alive but the call did not succeed, so the dispatcher may retry it.
func (c *Client) Execute(ctx context.Context, endpoint, tool string, params map[string]any) (any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	url := fmt.Sprintf("%s/tools/%s/execute", trimEndpoint(endpoint), tool)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute %s: %w", tool, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read execute response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("execute %s: unexpected status %d", tool, resp.StatusCode)
	}

	var envelope struct {
		Result any     `json:"result"`
		Error  *string `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode execute response: %w", err)
	}
	if envelope.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSoftFailure, *envelope.Error)
	}
	return envelope.Result, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeTypeHint(raw json.RawMessage) string {
	var direct string
	if err := json.Unmarshal(raw, &direct); err == nil {
		return direct
	}
	var object struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &object); err == nil && object.Type != "" {
		return object.Type
	}
	return "any"
}

func toolsURL(endpoint string) string {
	return trimEndpoint(endpoint) + "/tools"
}

func trimEndpoint(endpoint string) string {
	return strings.TrimRight(endpoint, "/")
}

var _ domain.ToolTransport = (*Client)(nil)
