package processing

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teilomillet/dispute/config"
)

// fakeCompleter records conversations and answers with a fixed result.
type fakeCompleter struct {
	content string
	err     error
	calls   [][]Message
}

func (f *fakeCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	f.calls = append(f.calls, messages)
	return f.content, f.err
}

type budgetFunc func([]Message) error

func (f budgetFunc) Check(messages []Message) error { return f(messages) }

const systemPrompt = "You are an assistant that drafts professional dispute letters."

func defaultProcessing() *config.ProcessingConfig {
	return &config.DefaultConfig().Processing
}

// TestNewProcessor verifies that invalid configuration fails at construction
// rather than on the first request.
func TestNewProcessor(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.ProcessingConfig
		prompt    string
		completer Completer
		wantErr   bool
	}{
		{
			name:      "nil config",
			cfg:       nil,
			prompt:    systemPrompt,
			completer: &fakeCompleter{},
			wantErr:   true,
		},
		{
			name:    "nil completer",
			cfg:     defaultProcessing(),
			prompt:  systemPrompt,
			wantErr: true,
		},
		{
			name:      "blank system prompt",
			cfg:       defaultProcessing(),
			prompt:    "  ",
			completer: &fakeCompleter{},
			wantErr:   true,
		},
		{
			name:      "valid config",
			cfg:       defaultProcessing(),
			prompt:    systemPrompt,
			completer: &fakeCompleter{},
		},
		{
			name: "invalid template",
			cfg: &config.ProcessingConfig{
				RequestTemplates: map[string]string{
					config.ShapeFlat: "{{.Creditor}",
				},
			},
			prompt:    systemPrompt,
			completer: &fakeCompleter{},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := NewProcessor(tt.cfg, tt.prompt, tt.completer)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, proc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, proc)
			}
		})
	}
}

func TestBuildMessages(t *testing.T) {
	proc, err := NewProcessor(defaultProcessing(), systemPrompt, &fakeCompleter{})
	require.NoError(t, err)

	tests := []struct {
		name     string
		dispute  *Dispute
		wantUser string
	}{
		{
			name: "flat",
			dispute: &Dispute{
				Shape:         config.ShapeFlat,
				Creditor:      "ACME Bank",
				DefaultAmount: "1500.50",
				BreachDetails: "Late fee charged twice",
			},
			wantUser: "Creditor: ACME Bank\nDefault Amount: 1500.50\nBreach Details: Late fee charged twice",
		},
		{
			name: "flat values are not escaped or trimmed",
			dispute: &Dispute{
				Shape:         config.ShapeFlat,
				Creditor:      " <ACME & Co> ",
				DefaultAmount: "$1,500",
				BreachDetails: "line one\nline two",
			},
			wantUser: "Creditor:  <ACME & Co> \nDefault Amount: $1,500\nBreach Details: line one\nline two",
		},
		{
			name: "nested",
			dispute: &Dispute{
				Shape:         config.ShapeNested,
				Name:          "Jane Doe",
				PostContent:   "Account closed",
				BreachDetails: "Fee charged twice\n\nNo notice given",
			},
			wantUser: "Name: Jane Doe\nPost Content: Account closed\nBreach Details: Fee charged twice\n\nNo notice given",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			messages, err := proc.BuildMessages(tt.dispute)
			require.NoError(t, err)
			assert.Equal(t, []Message{
				{Role: RoleSystem, Content: systemPrompt},
				{Role: RoleUser, Content: tt.wantUser},
			}, messages)

			again, err := proc.BuildMessages(tt.dispute)
			require.NoError(t, err)
			assert.Equal(t, messages, again, "message building is deterministic")
		})
	}

	t.Run("nil dispute", func(t *testing.T) {
		_, err := proc.BuildMessages(nil)
		assert.Error(t, err)
	})

	t.Run("unknown shape", func(t *testing.T) {
		_, err := proc.BuildMessages(&Dispute{Shape: "xml"})
		assert.Error(t, err)
	})
}

func TestProcessRequest(t *testing.T) {
	flat := &Dispute{
		Shape:         config.ShapeFlat,
		Creditor:      "ACME Bank",
		DefaultAmount: "1500.50",
		BreachDetails: "Late fee",
	}

	t.Run("trims the letter", func(t *testing.T) {
		completer := &fakeCompleter{content: " Dear Sir, ... \n"}
		proc, err := NewProcessor(defaultProcessing(), systemPrompt, completer)
		require.NoError(t, err)

		resp, err := proc.ProcessRequest(context.Background(), flat)
		require.NoError(t, err)
		assert.Equal(t, "Dear Sir, ...", resp.DisputeLetter)
		require.Len(t, completer.calls, 1)
		assert.Equal(t, RoleUser, completer.calls[0][1].Role)
	})

	t.Run("provider error passes through", func(t *testing.T) {
		providerErr := fmt.Errorf("rate limited")
		completer := &fakeCompleter{err: providerErr}
		proc, err := NewProcessor(defaultProcessing(), systemPrompt, completer)
		require.NoError(t, err)

		resp, err := proc.ProcessRequest(context.Background(), flat)
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, providerErr)
	})

	t.Run("budget rejection skips the provider", func(t *testing.T) {
		budgetErr := fmt.Errorf("too long")
		completer := &fakeCompleter{content: "unused"}
		proc, err := NewProcessor(defaultProcessing(), systemPrompt, completer)
		require.NoError(t, err)
		proc.SetBudget(budgetFunc(func(messages []Message) error {
			assert.Len(t, messages, 2)
			return budgetErr
		}))

		_, err = proc.ProcessRequest(context.Background(), flat)
		assert.ErrorIs(t, err, budgetErr)
		assert.Empty(t, completer.calls)
	})

	t.Run("custom template", func(t *testing.T) {
		completer := &fakeCompleter{content: "ok"}
		cfg := &config.ProcessingConfig{RequestTemplates: map[string]string{
			config.ShapeFlat: "Dispute with {{.Creditor}} over {{.DefaultAmount}}",
		}}
		proc, err := NewProcessor(cfg, systemPrompt, completer)
		require.NoError(t, err)

		_, err = proc.ProcessRequest(context.Background(), flat)
		require.NoError(t, err)
		assert.Equal(t, "Dispute with ACME Bank over 1500.50", completer.calls[0][1].Content)
	})
}
