package provider

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/sse"
)

// Coze polling defaults.
const (
	defaultCozeEndpoint     = "https://api.coze.cn/v1"
	defaultCozePollInterval = time.Second
	defaultCozeMaxAttempts  = 300
)

// CozeConfig configures a CozeProvider.
type CozeConfig struct {
	APIKey   string
	BotID    string
	Endpoint string
	// PollInterval is the delay between status checks (default 1s).
	PollInterval time.Duration
	// MaxPollAttempts bounds the status checks before giving up (default 300).
	MaxPollAttempts int
	HTTPClient      *http.Client
	// Timeout bounds each blocking HTTP exchange (0 means no bound).
	Timeout time.Duration
	Breaker BreakerSettings
}

// CozeProvider implements Provider against the Coze bot chat API. A blocking
// call creates a chat, polls it until it completes or fails, then returns
// the first "answer" message.
type CozeProvider struct {
	botID       string
	http        *upstream
	interval    time.Duration
	maxAttempts int
	log         *slog.Logger
}

var _ Provider = (*CozeProvider)(nil)

// NewCozeProvider constructs a CozeProvider.
func NewCozeProvider(cfg *CozeConfig, log *slog.Logger) (*CozeProvider, error) {
	if cfg.APIKey == "" || cfg.BotID == "" {
		return nil, &apperr.ConfigurationError{Component: "coze", Reason: "COZE_API_KEY and COZE_BOT_ID are required"}
	}
	if log == nil {
		log = slog.Default()
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultCozeEndpoint
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultCozePollInterval
	}
	attempts := cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = defaultCozeMaxAttempts
	}
	return &CozeProvider{
		botID:       cfg.BotID,
		http:        newUpstream("coze", endpoint, cfg.APIKey, cfg.HTTPClient, cfg.Timeout, cfg.Breaker, log),
		interval:    interval,
		maxAttempts: attempts,
		log:         log,
	}, nil
}

// Kind implements Provider.
func (p *CozeProvider) Kind() Kind { return KindCoze }

type cozeMessage struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
}

type cozeChatRequest struct {
	BotID              string        `json:"bot_id"`
	UserID             string        `json:"user_id"`
	AdditionalMessages []cozeMessage `json:"additional_messages"`
	Stream             bool          `json:"stream"`
	AutoSaveHistory    bool          `json:"auto_save_history"`
}

type cozeChat struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	LastError      *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"last_error,omitempty"`
}

type cozeChatEnvelope struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data cozeChat `json:"data"`
}

type cozeMessageList struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	} `json:"data"`
}

type cozeStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *CozeProvider) chatRequest(req *Request, stream bool) *cozeChatRequest {
	return &cozeChatRequest{
		BotID:  p.botID,
		UserID: req.userOrDefault(),
		AdditionalMessages: []cozeMessage{
			{Role: "user", Content: req.Prompt, ContentType: "text"},
		},
		Stream:          stream,
		AutoSaveHistory: !stream,
	}
}

// envelopeErr converts a non-zero envelope code into a TransportError.
func envelopeErr(code int, msg string) error {
	if code == 0 {
		return nil
	}
	return &apperr.TransportError{Service: "coze", Message: "code " + strconv.Itoa(code) + ": " + msg}
}

// Complete implements Provider.
func (p *CozeProvider) Complete(ctx context.Context, req *Request) (*Result, error) {
	var created cozeChatEnvelope
	if err := p.http.sendJSON(ctx, http.MethodPost, "/chat", p.chatRequest(req, false), &created); err != nil {
		return nil, err
	}
	if err := envelopeErr(created.Code, created.Msg); err != nil {
		return nil, err
	}
	chat := created.Data
	p.log.Debug("coze: chat created",
		slog.String("chat_id", chat.ID),
		slog.String("conversation_id", chat.ConversationID),
	)

	final, err := p.waitForCompletion(ctx, chat.ConversationID, chat.ID)
	if err != nil {
		return nil, err
	}
	if final.Status == "failed" {
		reason := "chat failed"
		if final.LastError != nil && final.LastError.Msg != "" {
			reason += ": " + final.LastError.Msg
		}
		return nil, &apperr.EmptyResultError{Service: "coze", Reason: reason}
	}

	answer, err := p.answer(ctx, chat.ConversationID, chat.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Text: answer}, nil
}

// waitForCompletion polls the chat status until it is completed or failed.
func (p *CozeProvider) waitForCompletion(ctx context.Context, conversationID, chatID string) (*cozeChat, error) {
	q := url.Values{"conversation_id": {conversationID}, "chat_id": {chatID}}
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		var status cozeChatEnvelope
		if err := p.http.sendJSON(ctx, http.MethodGet, "/chat/retrieve?"+q.Encode(), nil, &status); err != nil {
			return nil, err
		}
		if err := envelopeErr(status.Code, status.Msg); err != nil {
			return nil, err
		}
		switch status.Data.Status {
		case "completed", "failed":
			p.log.Debug("coze: chat finished",
				slog.String("chat_id", chatID),
				slog.String("status", status.Data.Status),
				slog.Int("attempts", attempt),
			)
			return &status.Data, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}
	return nil, &apperr.TimeoutError{Service: "coze", Attempts: p.maxAttempts, Interval: p.interval}
}

// answer returns the content of the first "answer" message of a chat.
func (p *CozeProvider) answer(ctx context.Context, conversationID, chatID string) (string, error) {
	q := url.Values{"conversation_id": {conversationID}, "chat_id": {chatID}}
	var list cozeMessageList
	if err := p.http.sendJSON(ctx, http.MethodGet, "/chat/message/list?"+q.Encode(), nil, &list); err != nil {
		return "", err
	}
	if err := envelopeErr(list.Code, list.Msg); err != nil {
		return "", err
	}
	for _, m := range list.Data {
		if m.Type == "answer" {
			return m.Content, nil
		}
	}
	return "", &apperr.EmptyResultError{Service: "coze", Reason: "no answer message found"}
}

// Stream implements Provider. History is not saved for streamed chats.
func (p *CozeProvider) Stream(ctx context.Context, req *Request, onChunk func(string)) error {
	resp, err := p.http.send(ctx, http.MethodPost, "/chat", p.chatRequest(req, true))
	if err != nil {
		return err
	}
	return sse.Read(ctx, resp.Body, sse.Lines, func(payload string) error {
		if payload == sse.Done {
			return nil
		}
		var chunk cozeStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			p.log.Debug("coze: skipping undecodable stream chunk", slog.String("error", err.Error()))
			return nil
		}
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(chunk.Choices[0].Delta.Content)
		}
		return nil
	})
}
