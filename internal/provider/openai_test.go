package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/recipe"
)

const sampleRecipeJSON = `{"name":"清炒时蔬","ingredients":[{"name":"青菜","amount":300,"unit":"克"}],"calories":120,"cookingTime":10,"nutritionFacts":{"protein":3,"fat":5,"carbs":12,"fiber":4},"steps":["洗菜","快炒"],"cuisineType":["家常菜"],"dietType":["素食"]}`

func newTestCompat(t *testing.T, endpoint string) *CompatProvider {
	t.Helper()
	p, err := NewCompatProvider(&CompatConfig{Kind: KindDeepSeek, APIKey: "sk-test", Endpoint: endpoint, Model: "deepseek-chat"}, nil)
	require.NoError(t, err)
	return p
}

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body chatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "deepseek-chat", body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, SystemPrompt, body.Messages[0].Content)
			assert.Equal(t, "user", body.Messages[1].Role)
		}

		resp := map[string]any{"choices": []any{map[string]any{"message": map[string]any{"content": content}}}}
		assert.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompatComplete_ExtractsFencedJSON(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "好的：\n```json\n"+sampleRecipeJSON+"\n```\n")
	res, err := newTestCompat(t, srv.URL).Complete(context.Background(), &Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, sampleRecipeJSON, res.Text)
}

func TestCompatComplete_NoFence(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, sampleRecipeJSON)
	_, err := newTestCompat(t, srv.URL).Complete(context.Background(), &Request{Prompt: "p"})
	var pe *recipe.ParseError
	require.ErrorAs(t, err, &pe)
}

func TestCompatComplete_InvalidUnitRejected(t *testing.T) {
	t.Parallel()

	bad := `{"name":"x","ingredients":[{"name":"盐","amount":1,"unit":"少许"}],"calories":1,"cookingTime":1,"nutritionFacts":{"protein":1,"fat":1,"carbs":1,"fiber":1},"steps":["a"]}`
	srv := completionServer(t, "```json\n"+bad+"\n```")
	_, err := newTestCompat(t, srv.URL).Complete(context.Background(), &Request{Prompt: "p"})
	var pe *recipe.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ingredients[0].unit", pe.Field)
}

func TestCompatComplete_EmptyContent(t *testing.T) {
	t.Parallel()

	srv := completionServer(t, "")
	_, err := newTestCompat(t, srv.URL).Complete(context.Background(), &Request{Prompt: "p"})
	var ee *apperr.EmptyResultError
	require.ErrorAs(t, err, &ee)
}

func TestCompatComplete_UpstreamErrorBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestCompat(t, srv.URL).Complete(context.Background(), &Request{Prompt: "p"})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.Status)
	assert.Equal(t, "invalid api key", te.Message)
}

func TestCompatStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatCompletionRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		flusher := w.(http.Flusher)
		delta := func(piece string) {
			b, _ := json.Marshal(map[string]any{"choices": []any{map[string]any{"delta": map[string]any{"content": piece}}}})
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		for _, piece := range []string{"```json\n", `{"name":`} {
			delta(piece)
		}
		// An undecodable chunk mid-stream is skipped and the stream goes on.
		io.WriteString(w, "data: {broken\n\n")
		for _, piece := range []string{`"x"}`, "\n```"} {
			delta(piece)
		}
		io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	var got string
	err := newTestCompat(t, srv.URL).Stream(context.Background(), &Request{Prompt: "p"}, func(c string) { got += c })
	require.NoError(t, err)
	assert.Equal(t, "```json\n{\"name\":\"x\"}\n```", got)
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	p, err := NewCompatProvider(&CompatConfig{
		Kind: KindSiliconFlow, APIKey: "sk-test", Endpoint: srv.URL,
		Breaker: BreakerSettings{MaxFailures: 2},
	}, nil)
	require.NoError(t, err)

	for range 2 {
		_, err := p.Complete(context.Background(), &Request{Prompt: "p"})
		require.Error(t, err)
	}
	_, err = p.Complete(context.Background(), &Request{Prompt: "p"})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	assert.Equal(t, "circuit breaker open", te.Message)
	assert.Equal(t, int32(2), calls.Load())
}
