// Package provider defines the Provider interface used to obtain a recipe
// from an LLM backend, the concrete implementations for each supported
// backend, and the Router that maps a provider name (plus, for user-defined
// providers, stored user settings) onto a ready-to-use Provider.
//
// Three interaction protocols are supported:
//
//   - polling (Coze): create a chat, poll its status, then fetch the answer
//   - chat completion (DeepSeek, SiliconFlow, custom and the Eino-backed
//     Ark, OpenAI, Ollama and Gemini models): one request with a fixed system
//     prompt, the answer carries a fenced JSON recipe
//   - workflow (Dify): structured inputs in, structured outputs back
package provider

import (
	"context"
	"strings"
)

// Kind names a provider backend.
type Kind string

const (
	// KindCoze selects the Coze bot API (polling protocol). It is the default.
	KindCoze Kind = "coze"
	// KindDeepSeek selects DeepSeek's OpenAI-compatible chat API.
	KindDeepSeek Kind = "deepseek"
	// KindSiliconFlow selects SiliconFlow's OpenAI-compatible chat API.
	KindSiliconFlow Kind = "siliconflow"
	// KindArk selects Volcano Engine Ark via the Eino ark model.
	KindArk Kind = "ark"
	// KindDify selects a Dify workflow (workflow protocol).
	KindDify Kind = "dify"
	// KindCustom selects a user-defined OpenAI-compatible endpoint whose
	// credentials come from the user's stored settings.
	KindCustom Kind = "custom"
	// KindOpenAI selects the OpenAI API via the Eino openai model.
	KindOpenAI Kind = "openai"
	// KindOllama selects a local Ollama instance via the Eino ollama model.
	KindOllama Kind = "ollama"
	// KindGemini selects Google Gemini via the Eino gemini model.
	KindGemini Kind = "gemini"
)

// Kinds lists every known provider in display order.
var Kinds = []Kind{KindCoze, KindDeepSeek, KindSiliconFlow, KindArk, KindDify, KindCustom, KindOpenAI, KindOllama, KindGemini}

// ParseKind maps a provider name onto a Kind. Empty and unknown names
// resolve to KindCoze.
func ParseKind(s string) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k
		}
	}
	return KindCoze
}

// Workflow reports whether k answers with structured workflow outputs
// rather than free text.
func (k Kind) Workflow() bool { return k == KindDify }

// DefaultUserID is sent to upstreams that require a user identifier when the
// caller did not supply one.
const DefaultUserID = "recommendation-user"

// Request is a single generation request.
type Request struct {
	// Prompt is the natural-language preference prompt.
	Prompt string
	// UserID identifies the end user to upstreams that track conversations.
	UserID string
	// Inputs are the structured workflow inputs. Only workflow providers
	// read them.
	Inputs map[string]string
}

func (r *Request) userOrDefault() string {
	if r.UserID != "" {
		return r.UserID
	}
	return DefaultUserID
}

// Result is the outcome of a blocking generation call. Text-answer providers
// fill Text; workflow providers fill Outputs.
type Result struct {
	Text    string
	Outputs map[string]any
}

// Provider obtains a recipe answer from one backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Kind reports which backend this provider talks to.
	Kind() Kind

	// Complete runs a blocking generation and returns the full answer.
	Complete(ctx context.Context, req *Request) (*Result, error)

	// Stream runs a streaming generation and calls onChunk with each piece
	// of answer text in arrival order. Workflow providers pass each raw
	// event payload instead. Stream returns once the upstream closes the
	// stream or ctx is cancelled.
	Stream(ctx context.Context, req *Request, onChunk func(chunk string)) error
}
