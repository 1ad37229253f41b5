package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2"
	pingTimeout  = 3 * time.Second
)

type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. http://localhost:11434/v1.
	BaseURL string
	APIKey  string
	Model   string
	// PingURL is probed by Ping. Empty means the engine is assumed up.
	PingURL string
	HTTP    *http.Client
}

// Client is an Engine over an OpenAI-compatible chat API.
type Client struct {
	cfg    Config
	client openai.Client
}

// NewOllama targets a local Ollama server at host.
func NewOllama(host, model string) *Client {
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = DefaultModel
	}
	return New(Config{
		BaseURL: host + "/v1",
		APIKey:  "ollama",
		Model:   model,
		PingURL: host + "/api/tags",
	})
}

func New(cfg Config) *Client {
	if cfg.HTTP == nil {
		cfg.HTTP = &http.Client{}
	}
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(cfg.HTTP),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return &Client{cfg: cfg, client: openai.NewClient(opts...)}
}

func (c *Client) Model() string { return c.cfg.Model }

func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    toParams(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toParams(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *Client) tags(ctx context.Context) (*tagsResponse, error) {
	if c.cfg.PingURL == "" {
		return &tagsResponse{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.PingURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cfg.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrServiceUnreachable, resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("%w: decode tags: %v", ErrServiceUnreachable, err)
	}
	return &tags, nil
}

// Ping probes the engine with a short timeout.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.tags(ctx)
	return err
}

// HasModel reports whether the engine has pulled a model. Names match
// with or without the ":latest" tag.
func (c *Client) HasModel(ctx context.Context, name string) (bool, error) {
	if c.cfg.PingURL == "" {
		return true, nil
	}
	tags, err := c.tags(ctx)
	if err != nil {
		return false, err
	}
	base := strings.TrimSuffix(name, ":latest")
	for _, m := range tags.Models {
		if m.Name == name || strings.TrimSuffix(m.Name, ":latest") == base {
			return true, nil
		}
	}
	return false, nil
}
