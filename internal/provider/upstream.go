package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// BreakerSettings tunes the per-upstream circuit breaker.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32
}

func (s BreakerSettings) withDefaults() BreakerSettings {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	return s
}

// upstream is an authenticated JSON-over-HTTP client for one backend,
// guarded by a circuit breaker. Only 5xx responses and network failures
// count against the breaker.
type upstream struct {
	service string
	baseURL string
	apiKey  string
	client  *http.Client
	// timeout bounds each blocking exchange; streams are bounded by the
	// caller's context alone.
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func newUpstream(service, baseURL, apiKey string, client *http.Client, timeout time.Duration, bs BreakerSettings, log *slog.Logger) *upstream {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	bs = bs.withDefaults()
	return &upstream{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        service,
			MaxRequests: bs.HalfOpenRequests,
			Timeout:     bs.OpenTimeout,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= bs.MaxFailures
			},
			IsSuccessful: countsAsSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn("provider: circuit breaker state change",
					slog.String("upstream", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the
// breaker.
func countsAsSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var te *apperr.TransportError
	if errors.As(err, &te) && te.Status >= 400 && te.Status < 500 {
		return true
	}
	return false
}

// send issues an authenticated request with body encoded as JSON. Any
// non-2xx response is returned as *apperr.TransportError carrying the
// upstream's own error message when one can be extracted. On success the
// caller owns resp.Body.
func (u *upstream) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.breaker.Execute(func() (*http.Response, error) {
		resp, err := u.client.Do(req)
		if err != nil {
			return nil, &apperr.TransportError{Service: u.service, Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			defer resp.Body.Close()
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			return nil, &apperr.TransportError{
				Service: u.service,
				Status:  resp.StatusCode,
				Message: upstreamMessage(raw, http.StatusText(resp.StatusCode)),
			}
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &apperr.TransportError{Service: u.service, Status: http.StatusServiceUnavailable, Message: "circuit breaker open", Err: err}
	}
	return resp, err
}

// sendJSON is send followed by decoding the response body into out, the
// whole exchange bounded by the upstream timeout.
func (u *upstream) sendJSON(ctx context.Context, method, path string, body, out any) error {
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}
	resp, err := u.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := decodeBody(resp, out); err != nil {
		return &apperr.TransportError{Service: u.service, Status: resp.StatusCode, Message: "decode response: " + err.Error()}
	}
	return nil
}

func decodeBody(resp *http.Response, out any) error {
	return json.NewDecoder(resp.Body).Decode(out)
}

// upstreamMessage extracts an error message from an error response body.
// It understands {"error": "..."}, {"error": {"message": "..."}}, {"msg"}
// and {"message"}, falls back to the raw body text, then to fallback.
func upstreamMessage(raw []byte, fallback string) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Msg     string          `json:"msg"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		if len(body.Error) > 0 {
			var s string
			if json.Unmarshal(body.Error, &s) == nil && s != "" {
				return s
			}
			var obj struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
				return obj.Message
			}
		}
		if body.Msg != "" {
			return body.Msg
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return fallback
}
