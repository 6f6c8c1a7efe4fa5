// Package provider implements the completion client: the only component
// performing outbound I/O. It sends one chat completion request per call to
// an OpenAI-compatible endpoint and never retries.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/teilomillet/dispute/config"
	"github.com/teilomillet/dispute/server/metrics"
	"github.com/teilomillet/dispute/server/processing"
	"go.uber.org/zap"
)

var _ processing.Completer = (*Client)(nil)

// maxErrorBody bounds how much of a non-JSON error body is kept as the message.
const maxErrorBody = 200

// Client sends conversations to the configured provider with a fixed model,
// max token bound and temperature.
type Client struct {
	api         *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	logger      *zap.Logger
	metrics     *metrics.Metrics
}

// NewClient builds the go-openai client from the LLM configuration. The
// credential and base URL are bound once here. A missing key is not an
// error at construction; the provider rejects the request instead.
func NewClient(cfg config.LLMConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &Client{
		api:         openai.NewClientWithConfig(oc),
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		logger:      logger,
		metrics:     m,
	}
}

// Complete sends messages as separate chat messages and returns the
// untrimmed content of the first choice. Errors are *APIError,
// *TransportError or wrap ErrMalformedResponse.
func (c *Client) Complete(ctx context.Context, messages []processing.Message) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, c.request(messages))
	elapsed := time.Since(start)

	outcome := "success"
	defer func() {
		if c.metrics != nil {
			c.metrics.ProviderLatency.WithLabelValues(c.provider, outcome).Observe(elapsed.Seconds())
		}
	}()

	if err != nil {
		classified := c.classify(ctx, err)
		var transportErr *TransportError
		switch {
		case errors.As(classified, &transportErr):
			outcome = "transport_error"
		case errors.Is(classified, ErrMalformedResponse):
			outcome = "malformed"
		default:
			outcome = "api_error"
		}
		c.logger.Warn("Completion failed",
			zap.String("provider", c.provider),
			zap.String("model", c.model),
			zap.String("outcome", outcome),
			zap.Duration("latency", elapsed),
			zap.Error(classified),
		)
		return "", classified
	}

	if len(resp.Choices) == 0 {
		outcome = "malformed"
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		outcome = "malformed"
		return "", fmt.Errorf("%w: empty content", ErrMalformedResponse)
	}

	c.logger.Debug("Completion received",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("latency", elapsed),
		zap.Int("content_length", len(content)),
	)
	return content, nil
}

func (c *Client) request(messages []processing.Message) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	// temperature is omitempty; the smallest positive value is sent as an explicit zero
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for i, msg := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content}
	}
	return req
}

// classify maps go-openai failures onto the provider error contract.
func (c *Client) classify(ctx context.Context, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: c.provider, StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: c.provider, StatusCode: reqErr.HTTPStatusCode, Message: requestErrorMessage(reqErr), Err: err}
	}

	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &TransportError{Err: err}
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &TransportError{Err: err}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// rejected by the client before sending, e.g. a model the chat endpoint does not serve
	return &APIError{Provider: c.provider, Message: err.Error(), Err: err}
}

func requestErrorMessage(e *openai.RequestError) string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	if body == "" {
		return e.HTTPStatus
	}
	return e.HTTPStatus + ": " + body
}

// Model returns the fixed model identifier.
func (c *Client) Model() string {
	return c.model
}
