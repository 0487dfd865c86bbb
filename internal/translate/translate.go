// Package translate converts VBA source to C# through a hosted chat-completion API.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SystemPrompt is sent as the system message of every conversion.
const SystemPrompt = "You are a highly skilled C# developer with expertise in VBA conversion."

// DefaultInstruction is the editable prompt that precedes the VBA code.
const DefaultInstruction = "You are an expert in converting VBA (Visual Basic for Applications) macros to C#.\n" +
	"Convert the following VBA code into C# with appropriate syntax and best practices:\n"

// Supported providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
)

const anthropicVersion = "2023-06-01"

// Default models used when Config.Model is empty. Azure routes by deployment.
const (
	DefaultOpenAIModel    = "gpt-4o"
	DefaultAnthropicModel = "claude-3-7-sonnet-20250219"
)

// ErrNoVBACode is returned when there is nothing to convert.
var ErrNoVBACode = errors.New("no VBA code to convert")

// ErrUnknownProvider is returned by New for an unsupported provider name.
var ErrUnknownProvider = errors.New("unknown LLM provider")

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Config selects and authenticates a provider.
type Config struct {
	Provider    string
	APIKey      string
	Endpoint    string
	Deployment  string // Azure only
	APIVersion  string // Azure only
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Request is one conversion.
type Request struct {
	VBACode string
	// Instruction replaces DefaultInstruction when non-empty.
	Instruction string
	// Module is the name of the module being converted, used for logging.
	Module string
}

// Conversion is the provider's answer.
type Conversion struct {
	// Code is the C# code block extracted from Raw.
	Code string `json:"code"`
	// Raw is the full response text.
	Raw string `json:"raw"`
}

// Client sends conversion requests to the configured provider.
type Client struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a Client, filling in provider defaults.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch cfg.Provider {
	case "":
		cfg.Provider = ProviderOpenAI
	case ProviderOpenAI, ProviderAzure, ProviderAnthropic:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}

	if cfg.Endpoint == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			cfg.Endpoint = "https://api.openai.com/v1"
		case ProviderAnthropic:
			cfg.Endpoint = "https://api.anthropic.com"
		default:
			return nil, errors.New("azure provider requires an endpoint")
		}
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Provider == ProviderAzure && cfg.Deployment == "" {
		return nil, errors.New("azure provider requires a deployment")
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case ProviderOpenAI:
			cfg.Model = DefaultOpenAIModel
		case ProviderAnthropic:
			cfg.Model = DefaultAnthropicModel
		}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-15-preview"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Provider returns the configured provider name.
func (c *Client) Provider() string {
	return c.cfg.Provider
}

// UserMessage builds the user turn from an instruction and the VBA code.
func UserMessage(instruction, code string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return instruction + "\n\nVBA CODE:\n" + code
}

// Convert sends one conversion request. The call is made once; failures are
// returned, never retried.
func (c *Client) Convert(ctx context.Context, req Request) (*Conversion, error) {
	if strings.TrimSpace(req.VBACode) == "" {
		return nil, ErrNoVBACode
	}

	user := UserMessage(req.Instruction, req.VBACode)
	start := time.Now()

	var raw string
	var err error
	switch c.cfg.Provider {
	case ProviderAnthropic:
		raw, err = c.callAnthropic(ctx, user)
	default:
		raw, err = c.callChat(ctx, user)
	}

	event := c.logger.Info()
	if err != nil {
		event = c.logger.Warn().Err(err)
	}
	event.Str("provider", c.cfg.Provider).
		Str("module", req.Module).
		Dur("duration", time.Since(start)).
		Msg("VBA conversion")

	if err != nil {
		return nil, err
	}
	return &Conversion{Code: ExtractCodeBlock(raw), Raw: raw}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (c *Client) callChat(ctx context.Context, user string) (string, error) {
	body := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: user},
		},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	var endpoint string
	header := http.Header{}
	if c.cfg.Provider == ProviderAzure {
		endpoint = fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.cfg.Endpoint, url.PathEscape(c.cfg.Deployment), url.QueryEscape(c.cfg.APIVersion))
		header.Set("api-key", c.cfg.APIKey)
	} else {
		endpoint = c.cfg.Endpoint + "/chat/completions"
		body.Model = c.cfg.Model
		if c.cfg.APIKey != "" {
			header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
	}

	respBody, err := c.post(ctx, endpoint, header, body)
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if result.Error != nil {
		return "", &APIError{Provider: c.cfg.Provider, StatusCode: http.StatusOK, Message: result.Error.Message}
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%s API returned no choices", c.cfg.Provider)
	}
	return result.Choices[0].Message.Content, nil
}

type anthropicRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *errorBody `json:"error,omitempty"`
}

func (c *Client) callAnthropic(ctx context.Context, user string) (string, error) {
	body := anthropicRequest{
		Model:       c.cfg.Model,
		System:      SystemPrompt,
		Messages:    []chatMessage{{Role: "user", Content: user}},
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	header := http.Header{}
	header.Set("x-api-key", c.cfg.APIKey)
	header.Set("anthropic-version", anthropicVersion)

	respBody, err := c.post(ctx, c.cfg.Endpoint+"/v1/messages", header, body)
	if err != nil {
		return "", err
	}

	var result anthropicResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	var sb strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("%s API returned no text", c.cfg.Provider)
	}
	return sb.String(), nil
}

func (c *Client) post(ctx context.Context, endpoint string, header http.Header, body any) ([]byte, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = header
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s API request failed: %w", c.cfg.Provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(respBody))
		var errResp struct {
			Error *errorBody `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &APIError{Provider: c.cfg.Provider, StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}

var codeBlockPattern = regexp.MustCompile("```(?:csharp|cs)?\\s*([\\s\\S]*?)```")

// ExtractCodeBlock returns the trimmed body of the first fenced code block
// (optionally tagged csharp or cs), or the trimmed text when there is none.
func ExtractCodeBlock(text string) string {
	if m := codeBlockPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ErrorMessage renders a conversion failure for display.
func ErrorMessage(err error) string {
	return "Error converting VBA to C#: " + err.Error()
}
