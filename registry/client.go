package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/swarmflow/swarmflow/types"
)

// ErrNotFound reports an identifier the registry does not know.
var ErrNotFound = errors.New("descriptor not found")

// ClientConfig holds the registry client settings. Retries cover the boot
// window where agents come up before the registry does.
type ClientConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Retries int           `yaml:"retries" json:"retries"`
	Delay   time.Duration `yaml:"delay" json:"delay"`
}

// DefaultClientConfig returns the default registry client settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "http://localhost:7000",
		Retries: 15,
		Delay:   2 * time.Second,
	}
}

// Client resolves descriptors over the registry HTTP surface.
type Client struct {
	config ClientConfig
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a registry client.
func NewClient(config ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Retries <= 0 {
		config.Retries = 1
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(zap.String("component", "registry_client")),
	}
}

// Agent resolves an agent descriptor by identifier.
func (c *Client) Agent(ctx context.Context, identifier string) (*types.AgentDescriptor, error) {
	var agent types.AgentDescriptor
	if err := c.get(ctx, "/agents/"+identifier, &agent); err != nil {
		return nil, err
	}
	return &agent, nil
}

// Swarm resolves a swarm descriptor by identifier. The registry rejects
// swarms violating the RACI cardinality invariant, so a successful lookup
// is already validated.
func (c *Client) Swarm(ctx context.Context, identifier string) (*types.SwarmDescriptor, error) {
	var swarm types.SwarmDescriptor
	if err := c.get(ctx, "/swarms/"+identifier, &swarm); err != nil {
		return nil, err
	}
	return &swarm, nil
}

// Tool resolves a tool descriptor by id.
func (c *Client) Tool(ctx context.Context, id string) (*types.ToolDescriptor, error) {
	var tool types.ToolDescriptor
	if err := c.get(ctx, "/tools/"+id, &tool); err != nil {
		return nil, err
	}
	return &tool, nil
}

// Tools resolves a list of tool descriptors, skipping unknown ids with a
// log line: a missing tool degrades the agent, it does not stop it.
func (c *Client) Tools(ctx context.Context, ids []string) []types.ToolDescriptor {
	var tools []types.ToolDescriptor
	for _, id := range ids {
		tool, err := c.Tool(ctx, id)
		if err != nil {
			c.logger.Error("failed to resolve tool",
				zap.String("tool_id", id),
				zap.Error(err),
			)
			continue
		}
		tools = append(tools, *tool)
	}
	return tools
}

// get performs a bounded-retry GET. Connectivity failures are retried with
// a fixed delay; 404 and 422 come back immediately as ErrNotFound and a
// descriptor error respectively.
func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	url := strings.TrimRight(c.config.BaseURL, "/") + endpoint

	var lastErr error
	for attempt := 0; attempt < c.config.Retries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying registry lookup",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.config.Delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("build registry request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode registry response: %w", err)
			}
			return nil
		case http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("%w: %s", ErrNotFound, endpoint)
		default:
			detail := readDetail(resp)
			resp.Body.Close()
			return fmt.Errorf("registry rejected %s: %s", endpoint, detail)
		}
	}
	return fmt.Errorf("registry unreachable at %s: %w", url, lastErr)
}

func readDetail(resp *http.Response) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Detail != "" {
		return body.Detail
	}
	return resp.Status
}
