package embedder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// apiError pulls a human-readable message out of an error body. It returns
// "" when the body carries none.
type apiError func(raw []byte) string

// postJSON sends body to url and decodes a 2xx answer into out. Non-2xx
// answers become *apperr.TransportError using the message extracted by
// describe, or the status text.
func postJSON(ctx context.Context, client *http.Client, service, url string, header http.Header, body, out any, describe apiError) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s embedder: marshal request: %w", service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s embedder: create request: %w", service, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	label := service + " embedding"
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &apperr.TransportError{Service: label, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperr.TransportError{Service: label, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if describe != nil {
			msg = describe(raw)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &apperr.TransportError{Service: label, Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s embedder: decode response: %w", service, err)
	}
	return nil
}
