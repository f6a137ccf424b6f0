package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// fakeCoze serves the three Coze endpoints. Status checks report
// in_progress until pendingPolls reaches zero.
func fakeCoze(t *testing.T, pendingPolls int32, finalStatus string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer coze-key", r.Header.Get("Authorization"))
		var body cozeChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bot-1", body.BotID)
		assert.Equal(t, DefaultUserID, body.UserID)
		assert.True(t, body.AutoSaveHistory)
		assert.False(t, body.Stream)
		fmt.Fprint(w, `{"code":0,"msg":"","data":{"id":"chat-1","conversation_id":"conv-1","status":"created"}}`)
	})
	mux.HandleFunc("GET /chat/retrieve", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "conv-1", r.URL.Query().Get("conversation_id"))
		assert.Equal(t, "chat-1", r.URL.Query().Get("chat_id"))
		n := polls.Add(1)
		status := "in_progress"
		if n > pendingPolls {
			status = finalStatus
		}
		fmt.Fprintf(w, `{"code":0,"data":{"id":"chat-1","conversation_id":"conv-1","status":%q,"last_error":{"code":1,"msg":"bot crashed"}}}`, status)
	})
	mux.HandleFunc("GET /chat/message/list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":0,"data":[
			{"type":"verbose","content":"thinking"},
			{"type":"answer","content":"first answer"},
			{"type":"answer","content":"second answer"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &polls
}

func newTestCoze(t *testing.T, endpoint string, attempts int) *CozeProvider {
	t.Helper()
	p, err := NewCozeProvider(&CozeConfig{
		APIKey:          "coze-key",
		BotID:           "bot-1",
		Endpoint:        endpoint,
		PollInterval:    time.Millisecond,
		MaxPollAttempts: attempts,
	}, nil)
	require.NoError(t, err)
	return p
}

func TestCozeComplete_PollsUntilCompletedAndTakesFirstAnswer(t *testing.T) {
	t.Parallel()

	srv, polls := fakeCoze(t, 2, "completed")
	p := newTestCoze(t, srv.URL, 10)

	res, err := p.Complete(context.Background(), &Request{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "first answer", res.Text)
	assert.Equal(t, int32(3), polls.Load())
}

func TestCozeComplete_Timeout(t *testing.T) {
	t.Parallel()

	srv, polls := fakeCoze(t, 1000, "completed")
	p := newTestCoze(t, srv.URL, 3)

	_, err := p.Complete(context.Background(), &Request{Prompt: "hi"})
	var te *apperr.TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), polls.Load())
}

func TestCozeComplete_FailedChat(t *testing.T) {
	t.Parallel()

	srv, _ := fakeCoze(t, 0, "failed")
	p := newTestCoze(t, srv.URL, 3)

	_, err := p.Complete(context.Background(), &Request{Prompt: "hi"})
	var ee *apperr.EmptyResultError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Reason, "bot crashed")
}

func TestCozeComplete_EnvelopeError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"code":4100,"msg":"invalid token"}`)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestCoze(t, srv.URL, 3).Complete(context.Background(), &Request{Prompt: "hi"})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Message, "invalid token")
}

func TestCozeComplete_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	_, err := newTestCoze(t, srv.URL, 3).Complete(context.Background(), &Request{Prompt: "hi"})
	var te *apperr.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusInternalServerError, te.Status)
	assert.Equal(t, "upstream exploded", te.Message)
}

func TestCozeComplete_CancelDuringPolling(t *testing.T) {
	t.Parallel()

	srv, _ := fakeCoze(t, 1000, "completed")
	p, err := NewCozeProvider(&CozeConfig{
		APIKey: "coze-key", BotID: "bot-1", Endpoint: srv.URL,
		PollInterval: time.Hour, MaxPollAttempts: 300,
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Complete(ctx, &Request{Prompt: "hi"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCozeStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body cozeChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.Stream)
		assert.False(t, body.AutoSaveHistory)
		assert.Equal(t, "u-9", body.UserID)

		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"番茄\"}}]}\n")
		io.WriteString(w, "data: not json\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"炒蛋\"}}]}\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	t.Cleanup(srv.Close)

	var chunks []string
	err := newTestCoze(t, srv.URL, 3).Stream(context.Background(), &Request{Prompt: "hi", UserID: "u-9"}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"番茄", "炒蛋"}, chunks)
}

func TestNewCozeProvider_RequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewCozeProvider(&CozeConfig{APIKey: "k"}, nil)
	var ce *apperr.ConfigurationError
	require.ErrorAs(t, err, &ce)
}
