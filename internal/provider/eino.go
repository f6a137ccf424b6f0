package provider

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// EinoProvider adapts an Eino chat model to Provider. It sends the same
// system and user messages as CompatProvider and applies the same fenced
// JSON extraction to blocking answers.
type EinoProvider struct {
	kind  Kind
	model model.BaseChatModel
}

var _ Provider = (*EinoProvider)(nil)

// NewEinoProvider wraps m as a Provider reporting kind.
func NewEinoProvider(kind Kind, m model.BaseChatModel) *EinoProvider {
	return &EinoProvider{kind: kind, model: m}
}

// Kind implements Provider.
func (p *EinoProvider) Kind() Kind { return p.kind }

func (p *EinoProvider) messages(req *Request) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(SystemPrompt),
		schema.UserMessage(req.Prompt),
	}
}

// Complete implements Provider.
func (p *EinoProvider) Complete(ctx context.Context, req *Request) (*Result, error) {
	msg, err := p.model.Generate(ctx, p.messages(req))
	if err != nil {
		return nil, p.wrap(ctx, err)
	}
	if msg == nil || msg.Content == "" {
		return nil, &apperr.EmptyResultError{Service: string(p.kind), Reason: "no content in response"}
	}
	text, err := fencedRecipe(msg.Content)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}

// Stream implements Provider.
func (p *EinoProvider) Stream(ctx context.Context, req *Request, onChunk func(string)) error {
	sr, err := p.model.Stream(ctx, p.messages(req))
	if err != nil {
		return p.wrap(ctx, err)
	}
	defer sr.Close()

	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return p.wrap(ctx, err)
		}
		if chunk != nil && chunk.Content != "" {
			onChunk(chunk.Content)
		}
	}
}

// wrap classifies SDK failures as transport errors unless the caller's
// context ended first.
func (p *EinoProvider) wrap(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &apperr.TransportError{Service: string(p.kind), Err: err}
}
