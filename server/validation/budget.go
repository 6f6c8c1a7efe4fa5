package validation

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/teilomillet/dispute/errors"
	"github.com/teilomillet/dispute/server/processing"
)

// Chat format overhead, as counted by OpenAI for its chat models.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

// fallbackEncoding is used for models tiktoken does not know.
const fallbackEncoding = "cl100k_base"

// Tokenizer abstracts token encoding so tests can avoid downloading encodings.
type Tokenizer interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

// TokenCounter rejects conversations whose prompt tokens plus the reserved
// completion tokens exceed the model context window.
type TokenCounter struct {
	encoding      Tokenizer
	maxContext    int
	maxCompletion int
}

// NewTokenCounter creates a counter using the tiktoken encoding for model.
func NewTokenCounter(model string, maxContext, maxCompletion int) (*TokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding for model %s: %w", model, err)
		}
	}
	return NewTokenCounterWithTokenizer(enc, maxContext, maxCompletion), nil
}

// NewTokenCounterWithTokenizer creates a counter around an existing tokenizer.
func NewTokenCounterWithTokenizer(tok Tokenizer, maxContext, maxCompletion int) *TokenCounter {
	return &TokenCounter{
		encoding:      tok,
		maxContext:    maxContext,
		maxCompletion: maxCompletion,
	}
}

// CountTokens returns the prompt token count of a conversation.
func (tc *TokenCounter) CountTokens(messages []processing.Message) int {
	total := tokensPerReply
	for _, msg := range messages {
		total += tokensPerMessage
		total += len(tc.encoding.Encode(msg.Role, nil, nil))
		total += len(tc.encoding.Encode(msg.Content, nil, nil))
	}
	return total
}

// Check implements processing.BudgetChecker.
func (tc *TokenCounter) Check(messages []processing.Message) error {
	if tc.maxContext <= 0 {
		return nil
	}
	count := tc.CountTokens(messages)
	if count+tc.maxCompletion > tc.maxContext {
		return errors.NewValidationError("", MsgPromptTooLong,
			fmt.Errorf("prompt uses %d tokens, %d reserved for completion, context is %d", count, tc.maxCompletion, tc.maxContext))
	}
	return nil
}
