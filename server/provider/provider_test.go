package provider_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teilomillet/dispute/config"
	"github.com/teilomillet/dispute/server/metrics"
	"github.com/teilomillet/dispute/server/mocks"
	"github.com/teilomillet/dispute/server/processing"
	"github.com/teilomillet/dispute/server/provider"
)

var conversation = []processing.Message{
	{Role: processing.RoleSystem, Content: "You are an assistant that drafts professional dispute letters."},
	{Role: processing.RoleUser, Content: "Creditor: ACME\nDefault Amount: 10\nBreach Details: x"},
}

func testLLMConfig(srv *mocks.OpenAIServer) config.LLMConfig {
	cfg := config.DefaultConfig().LLM
	cfg.APIKey = "sk-test"
	cfg.BaseURL = srv.BaseURL()
	return cfg
}

func newClient(t *testing.T, respond mocks.Responder) (*provider.Client, *mocks.OpenAIServer, *metrics.Metrics) {
	t.Helper()
	srv := mocks.NewOpenAIServer(t, respond)
	m := metrics.NewMetrics()
	return provider.NewClient(testLLMConfig(srv), zap.NewNop(), m), srv, m
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()
	client, srv, m := newClient(t, mocks.Reply(" Dear Sir, ... "))

	content, err := client.Complete(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, " Dear Sir, ... ", content, "content is returned untrimmed")

	req, header, ok := srv.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	assert.Equal(t, 350, req.MaxTokens)
	assert.InDelta(t, 0.7, req.Temperature, 1e-6)
	assert.False(t, req.Stream)
	assert.Equal(t, []mocks.ChatMessage{
		{Role: "system", Content: conversation[0].Content},
		{Role: "user", Content: conversation[1].Content},
	}, req.Messages)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency, "dispute_provider_request_duration_seconds"))
	assert.Equal(t, "gpt-3.5-turbo", client.Model())
}

func TestComplete_ZeroTemperature(t *testing.T) {
	t.Parallel()
	srv := mocks.NewOpenAIServer(t, mocks.Reply("ok"))
	cfg := testLLMConfig(srv)
	cfg.Temperature = 0

	_, err := provider.NewClient(cfg, zap.NewNop(), nil).Complete(context.Background(), conversation)
	require.NoError(t, err)

	req, _, ok := srv.LastRequest()
	require.True(t, ok)
	assert.InDelta(t, 0, req.Temperature, 1e-9)
}

func TestComplete_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		respond     mocks.Responder
		wantStatus  int
		wantMessage string
		wantBadBody bool
	}{
		{
			name:        "invalid api key",
			respond:     mocks.ReplyError(http.StatusUnauthorized, "invalid_request_error", "Incorrect API key provided: sk-test."),
			wantStatus:  http.StatusUnauthorized,
			wantMessage: "Incorrect API key provided: sk-test.",
		},
		{
			name:        "quota exceeded",
			respond:     mocks.ReplyError(http.StatusTooManyRequests, "insufficient_quota", "You exceeded your current quota"),
			wantStatus:  http.StatusTooManyRequests,
			wantMessage: "You exceeded your current quota",
		},
		{
			name:        "gateway html",
			respond:     mocks.ReplyRaw(http.StatusBadGateway, "text/html", "<html>bad gateway</html>\n"),
			wantStatus:  http.StatusBadGateway,
			wantMessage: "502 Bad Gateway: <html>bad gateway</html>",
		},
		{
			name:        "no choices",
			respond:     mocks.ReplyRaw(http.StatusOK, "application/json", `{"id":"chatcmpl-test","choices":[]}`),
			wantBadBody: true,
		},
		{
			name:        "blank content",
			respond:     mocks.Reply("  \n "),
			wantBadBody: true,
		},
		{
			name:        "not json",
			respond:     mocks.ReplyRaw(http.StatusOK, "text/plain", "Dear Sir"),
			wantBadBody: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client, srv, _ := newClient(t, tt.respond)

			_, err := client.Complete(context.Background(), conversation)
			require.Error(t, err)
			assert.Equal(t, 1, srv.Calls(), "no retries")

			var transportErr *provider.TransportError
			assert.False(t, errors.As(err, &transportErr))

			if tt.wantBadBody {
				assert.ErrorIs(t, err, provider.ErrMalformedResponse)
				return
			}

			var apiErr *provider.APIError
			require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
			assert.Equal(t, "openai", apiErr.Provider)
			assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestComplete_ConnectionRefused(t *testing.T) {
	t.Parallel()
	client, srv, m := newClient(t, mocks.Reply("unreachable"))
	srv.Close()

	_, err := client.Complete(context.Background(), conversation)

	var transportErr *provider.TransportError
	require.True(t, errors.As(err, &transportErr), "got %T: %v", err, err)
	var apiErr *provider.APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderLatency, "dispute_provider_request_duration_seconds"))
}

func TestComplete_Timeout(t *testing.T) {
	t.Parallel()
	srv := mocks.NewOpenAIServer(t, mocks.Hang())
	cfg := testLLMConfig(srv)
	cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := provider.NewClient(cfg, zap.NewNop(), nil).Complete(context.Background(), conversation)
	assert.Less(t, time.Since(start), 5*time.Second)

	var transportErr *provider.TransportError
	assert.True(t, errors.As(err, &transportErr), "got %T: %v", err, err)
}

func TestComplete_ModelRejectedBeforeSending(t *testing.T) {
	t.Parallel()
	srv := mocks.NewOpenAIServer(t, mocks.Reply("unused"))
	cfg := testLLMConfig(srv)
	cfg.Model = "text-davinci-003"

	_, err := provider.NewClient(cfg, zap.NewNop(), nil).Complete(context.Background(), conversation)

	var apiErr *provider.APIError
	require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
	assert.Zero(t, apiErr.StatusCode)
	assert.Equal(t, 0, srv.Calls())
}

func TestComplete_FailureLoggedThroughZap(t *testing.T) {
	t.Parallel()
	srv := mocks.NewOpenAIServer(t, mocks.ReplyError(http.StatusUnauthorized, "invalid_request_error", "Incorrect API key provided"))
	core, logs := observer.New(zapcore.DebugLevel)

	_, err := provider.NewClient(testLLMConfig(srv), zap.New(core), nil).Complete(context.Background(), conversation)
	require.Error(t, err)

	entries := logs.FilterMessage("Completion failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "api_error", entries[0].ContextMap()["outcome"])
	assert.Equal(t, "gpt-3.5-turbo", entries[0].ContextMap()["model"])
}
