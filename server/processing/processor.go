package processing

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/teilomillet/dispute/config"
)

// Completer sends a conversation to the text generation provider and returns
// the raw content of the first completion.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// BudgetChecker rejects conversations that do not fit the model context.
type BudgetChecker interface {
	Check(messages []Message) error
}

// Processor builds the conversation for a dispute, sends it to the
// Completer and shapes the generated letter.
//
// Templates are compiled once at construction so that an invalid template
// fails at startup rather than on the first request.
type Processor struct {
	completer    Completer
	templates    map[string]*template.Template
	systemPrompt string
	budget       BudgetChecker
}

// NewProcessor creates a processor from the processing configuration and
// the fixed system instruction.
func NewProcessor(cfg *config.ProcessingConfig, systemPrompt string, completer Completer) (*Processor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("processing config is required")
	}
	if completer == nil {
		return nil, fmt.Errorf("completer is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("system prompt is required")
	}

	templates := make(map[string]*template.Template, len(cfg.RequestTemplates))
	for name, tmpl := range cfg.RequestTemplates {
		t, err := template.New(name).Option("missingkey=error").Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = t
	}

	return &Processor{
		completer:    completer,
		templates:    templates,
		systemPrompt: systemPrompt,
	}, nil
}

// SetBudget installs a token budget check run before every provider call.
func (p *Processor) SetBudget(b BudgetChecker) {
	p.budget = b
}

// BuildMessages maps a dispute to the system and user messages. It is a
// pure function of the dispute and the processor configuration.
func (p *Processor) BuildMessages(d *Dispute) ([]Message, error) {
	if d == nil {
		return nil, fmt.Errorf("dispute cannot be nil")
	}

	tmpl, ok := p.templates[d.Shape]
	if !ok {
		return nil, fmt.Errorf("no template found for shape: %s", d.Shape)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("template execution failed: %w", err)
	}

	return []Message{
		{Role: RoleSystem, Content: p.systemPrompt},
		{Role: RoleUser, Content: buf.String()},
	}, nil
}

// ProcessRequest builds the conversation, checks its token budget, calls the
// provider once and returns the trimmed letter. Provider errors are returned
// unchanged so the caller can classify them.
func (p *Processor) ProcessRequest(ctx context.Context, d *Dispute) (*Response, error) {
	messages, err := p.BuildMessages(d)
	if err != nil {
		return nil, err
	}

	if p.budget != nil {
		if err := p.budget.Check(messages); err != nil {
			return nil, err
		}
	}

	content, err := p.completer.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}

	return &Response{DisputeLetter: strings.TrimSpace(content)}, nil
}
