package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

// stubProvider is a Provider that returns fixed results.
type stubProvider struct {
	kind   Kind
	result *Result
	err    error
	chunks []string
}

func (s *stubProvider) Kind() Kind { return s.kind }

func (s *stubProvider) Complete(context.Context, *Request) (*Result, error) {
	return s.result, s.err
}

func (s *stubProvider) Stream(_ context.Context, _ *Request, onChunk func(string)) error {
	for _, c := range s.chunks {
		onChunk(c)
	}
	return s.err
}

func TestParseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Kind
	}{
		{"", KindCoze},
		{"coze", KindCoze},
		{"DeepSeek", KindDeepSeek},
		{" dify ", KindDify},
		{"custom", KindCustom},
		{"gemini", KindGemini},
		{"mystery", KindCoze},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseKind(tt.in))
		})
	}
}

func TestRouterResolve_ProcessWide(t *testing.T) {
	t.Parallel()

	coze := &stubProvider{kind: KindCoze}
	r := NewRouter(map[Kind]Provider{KindCoze: coze}, nil, RouterConfig{}, nil)

	p, err := r.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	assert.Same(t, coze, p)

	_, err = r.Resolve(context.Background(), KindDeepSeek, "")
	var ce *apperr.ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, ce.Reason, "deepseek")

	assert.Equal(t, []Kind{KindCoze}, r.Configured())
}

func TestRouterResolve_CustomValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		settings *CustomSettings
		userID   string
	}{
		{"missing user", &CustomSettings{Service: "custom", APIKey: "k", Endpoint: "http://x", Model: "m"}, ""},
		{"no settings", nil, "u1"},
		{"other service", &CustomSettings{Service: "coze", APIKey: "k", Endpoint: "http://x", Model: "m"}, "u1"},
		{"missing model", &CustomSettings{Service: "custom", APIKey: "k", Endpoint: "http://x"}, "u1"},
		{"missing key", &CustomSettings{Service: "custom", Endpoint: "http://x", Model: "m"}, "u1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRouter(nil, func(context.Context, string) (*CustomSettings, error) {
				return tt.settings, nil
			}, RouterConfig{}, nil)
			_, err := r.Resolve(context.Background(), KindCustom, tt.userID)
			var ce *apperr.ConfigurationError
			require.ErrorAs(t, err, &ce)
		})
	}
}

func TestRouterResolve_CustomLookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	r := NewRouter(nil, func(context.Context, string) (*CustomSettings, error) {
		return nil, boom
	}, RouterConfig{}, nil)
	_, err := r.Resolve(context.Background(), KindCustom, "u1")
	assert.ErrorIs(t, err, boom)
}

func TestRouterResolve_CustomIsMemoizedPerUser(t *testing.T) {
	t.Parallel()

	var lookups atomic.Int32
	r := NewRouter(nil, func(_ context.Context, userID string) (*CustomSettings, error) {
		lookups.Add(1)
		return &CustomSettings{Service: "custom", APIKey: "k-" + userID, Endpoint: "http://llm.local/v1", Model: "m"}, nil
	}, RouterConfig{}, nil)

	ctx := context.Background()
	a1, err := r.Resolve(ctx, KindCustom, "alice")
	require.NoError(t, err)
	a2, err := r.Resolve(ctx, KindCustom, "alice")
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, KindCustom, a1.Kind())

	b, err := r.Resolve(ctx, KindCustom, "bob")
	require.NoError(t, err)
	assert.NotSame(t, a1, b)
	assert.Equal(t, int32(2), lookups.Load())

	r.Invalidate("alice")
	a3, err := r.Resolve(ctx, KindCustom, "alice")
	require.NoError(t, err)
	assert.NotSame(t, a1, a3)
	assert.Equal(t, int32(3), lookups.Load())
}
