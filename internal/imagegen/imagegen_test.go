package imagegen

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/eatwhat-go/internal/apperr"
)

func newTestGenerator(t *testing.T, endpoint string, opts ...Option) *Generator {
	t.Helper()
	opts = append([]Option{WithSeed(func() int64 { return 42 })}, opts...)
	g, err := New(&Config{Endpoint: endpoint, APIKey: "sk-img", Model: "test-model"}, opts...)
	require.NoError(t, err)
	return g
}

func TestGenerate_RequestShape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer sk-img", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body["model"])
		assert.Equal(t, Prompt("宫保鸡丁", "香辣可口"), body["prompt"])
		assert.InDelta(t, 42, body["seed"], 0)
		assert.Equal(t, "512x512", body["image_size"])
		assert.InDelta(t, 1, body["batch_size"], 0)
		assert.InDelta(t, 7, body["guidance_scale"], 0)

		_, _ = io.WriteString(w, `{"data":[{"url":"https://cdn.example.com/a.png"}]}`)
	}))
	defer srv.Close()

	url, err := newTestGenerator(t, srv.URL+"/").Generate(context.Background(), "宫保鸡丁", "香辣可口", "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", url)
}

func TestPrompt(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"A delicious looking dish of 红烧肉. 肥而不腻. Food photography style, professional lighting, high resolution, appetizing presentation",
		Prompt("红烧肉", "肥而不腻"))
}

func TestGenerate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "upstream message",
			status: http.StatusBadRequest,
			body:   `{"message":"invalid image_size"}`,
			check: func(t *testing.T, err error) {
				var te *apperr.TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, http.StatusBadRequest, te.Status)
				assert.Equal(t, "invalid image_size", te.Message)
			},
		},
		{
			name:   "status text",
			status: http.StatusServiceUnavailable,
			body:   `oops`,
			check: func(t *testing.T, err error) {
				var te *apperr.TransportError
				require.ErrorAs(t, err, &te)
				assert.Equal(t, "Service Unavailable", te.Message)
			},
		},
		{
			name:   "no url",
			status: http.StatusOK,
			body:   `{"data":[]}`,
			check: func(t *testing.T, err error) {
				var ee *apperr.EmptyResultError
				require.ErrorAs(t, err, &ee)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestGenerator(t, srv.URL).Generate(context.Background(), "x", "y", "1024x1024")
			tt.check(t, err)
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	_, err := New(&Config{})
	var ce *apperr.ConfigurationError
	require.ErrorAs(t, err, &ce)
}

type fakePutter struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.key = *in.Key
	f.contentType = *in.ContentType
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://" + *in.Bucket + ".s3.example.com/" + *in.Key + "?sig=1"}, nil
}

func TestGenerate_MirrorsToS3(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"images":[{"url":"`+srv.URL+`/tmp/img"}]}`)
	})
	mux.HandleFunc("/tmp/img", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = io.WriteString(w, "JPEGDATA")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	put := &fakePutter{}
	mirror := NewS3MirrorWith("meals", put, fakePresigner{}, time.Hour, srv.Client())

	url, err := newTestGenerator(t, srv.URL, WithMirror(mirror)).Generate(context.Background(), "饺子", "", "")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(put.key, "recipes/generated/"))
	assert.True(t, strings.HasSuffix(put.key, ".jpg"))
	assert.Equal(t, "image/jpeg", put.contentType)
	assert.Equal(t, []byte("JPEGDATA"), put.body)
	assert.Equal(t, "https://meals.s3.example.com/"+put.key+"?sig=1", url)
}

func TestGenerate_MirrorFailureFallsBack(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/images/generations", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"data":[{"url":"`+srv.URL+`/tmp/img.png"}]}`)
	})
	mux.HandleFunc("/tmp/img.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "PNG")
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	mirror := NewS3MirrorWith("meals", &fakePutter{err: errors.New("access denied")}, fakePresigner{}, 0, srv.Client())
	url, err := newTestGenerator(t, srv.URL, WithMirror(mirror)).Generate(context.Background(), "饺子", "", "")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/tmp/img.png", url)
}

func TestExtension(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "jpg", extension("image/jpeg; charset=binary", ""))
	assert.Equal(t, "webp", extension("", "https://x/y/z.WEBP?token=1"))
	assert.Equal(t, "jpg", extension("application/octet-stream", "https://x/a.jpeg"))
	assert.Equal(t, "png", extension("", "https://x/noext"))
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SILICONFLOW_API_ENDPOINT", "")
	t.Setenv("IMAGE_API_KEY", "")
	t.Setenv("SILICONFLOW_API_KEY", "sf")
	t.Setenv("SILICONFLOW_PICTURE_MODEL", "")
	t.Setenv("IMAGE_PRESIGN_EXPIRY", "2h")

	cfg := ConfigFromEnv()
	assert.Equal(t, defaultEndpoint, cfg.Endpoint)
	assert.Equal(t, "sf", cfg.APIKey)
	assert.Equal(t, defaultModel, cfg.Model)
	assert.Equal(t, 2*time.Hour, cfg.PresignExpiry)
}
