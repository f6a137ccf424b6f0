// Package imagegen renders a picture of a recipe through the SiliconFlow
// images API and, when a bucket is configured, mirrors it to S3 so the
// returned URL outlives the provider's temporary link.
package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/54b3r/eatwhat-go/internal/apperr"
	"github.com/54b3r/eatwhat-go/internal/logging"
)

const (
	defaultEndpoint = "https://api.siliconflow.cn/v1"
	defaultModel    = "Kwai-Kolors/Kolors"
	// DefaultSize is used when the caller passes no size.
	DefaultSize = "512x512"

	guidanceScale = 7
	maxSeed       = 9999999999
)

// Config configures the image generation client.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration

	// Bucket enables the S3 mirror when non-empty.
	Bucket        string
	Region        string
	PresignExpiry time.Duration
}

// ConfigFromEnv reads SILICONFLOW_API_ENDPOINT, IMAGE_API_KEY (falling back
// to SILICONFLOW_API_KEY), SILICONFLOW_PICTURE_MODEL, S3_BUCKET_NAME,
// AWS_REGION and IMAGE_PRESIGN_EXPIRY.
func ConfigFromEnv() *Config {
	cfg := &Config{
		Endpoint:      os.Getenv("SILICONFLOW_API_ENDPOINT"),
		APIKey:        os.Getenv("IMAGE_API_KEY"),
		Model:         os.Getenv("SILICONFLOW_PICTURE_MODEL"),
		Timeout:       60 * time.Second,
		Bucket:        os.Getenv("S3_BUCKET_NAME"),
		Region:        os.Getenv("AWS_REGION"),
		PresignExpiry: 24 * time.Hour,
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("SILICONFLOW_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if d, err := time.ParseDuration(os.Getenv("IMAGE_PRESIGN_EXPIRY")); err == nil && d > 0 {
		cfg.PresignExpiry = d
	}
	return cfg
}

// Mirror copies a remote image into durable storage and returns the URL
// to hand out instead.
type Mirror interface {
	Mirror(ctx context.Context, sourceURL string) (string, error)
}

// Generator produces recipe images. It is safe for concurrent use.
type Generator struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	mirror   Mirror
	seed     func() int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithMirror copies every generated image through m.
func WithMirror(m Mirror) Option {
	return func(g *Generator) { g.mirror = m }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Generator) { g.client = c }
}

// WithSeed replaces the random seed source.
func WithSeed(seed func() int64) Option {
	return func(g *Generator) { g.seed = seed }
}

// New returns a Generator. It fails when no API key is configured.
func New(cfg *Config, opts ...Option) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, &apperr.ConfigurationError{Component: "imagegen", Reason: "IMAGE_API_KEY or SILICONFLOW_API_KEY is required"}
	}
	g := &Generator{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   &http.Client{Timeout: cfg.Timeout},
		seed:     func() int64 { return rand.Int64N(maxSeed) },
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

type generationRequest struct {
	Model         string `json:"model"`
	Prompt        string `json:"prompt"`
	Seed          int64  `json:"seed"`
	ImageSize     string `json:"image_size"`
	BatchSize     int    `json:"batch_size"`
	GuidanceScale int    `json:"guidance_scale"`
}

type generationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
	// Images is the shape some SiliconFlow models answer with.
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
	Message string `json:"message"`
}

// Prompt is the text sent to the image model for a recipe.
func Prompt(name, description string) string {
	return fmt.Sprintf("A delicious looking dish of %s. %s. Food photography style, professional lighting, high resolution, appetizing presentation", name, description)
}

// Generate renders name and description and returns the image URL. When a
// mirror is configured and copying fails, the provider URL is returned.
func (g *Generator) Generate(ctx context.Context, name, description, size string) (string, error) {
	if size == "" {
		size = DefaultSize
	}
	log := logging.FromContext(ctx).With(slog.String("recipe", name))

	body, err := json.Marshal(&generationRequest{
		Model:         g.model,
		Prompt:        Prompt(name, description),
		Seed:          g.seed(),
		ImageSize:     size,
		BatchSize:     1,
		GuidanceScale: guidanceScale,
	})
	if err != nil {
		return "", fmt.Errorf("imagegen: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+"/images/generations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", &apperr.TransportError{Service: "image generation", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &apperr.TransportError{Service: "image generation", Status: resp.StatusCode, Err: err}
	}

	var out generationResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Message != "" {
			msg = out.Message
		}
		return "", &apperr.TransportError{Service: "image generation", Status: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return "", fmt.Errorf("imagegen: decode response: %w", decodeErr)
	}

	url := firstURL(&out)
	if url == "" {
		return "", &apperr.EmptyResultError{Service: "image generation", Reason: "response carried no image url"}
	}
	log.Debug("imagegen: generated")

	if g.mirror == nil {
		return url, nil
	}
	mirrored, err := g.mirror.Mirror(ctx, url)
	if err != nil {
		log.Warn("imagegen: mirror failed, returning provider url", slog.String("error", err.Error()))
		return url, nil
	}
	return mirrored, nil
}

func firstURL(r *generationResponse) string {
	if len(r.Data) > 0 && r.Data[0].URL != "" {
		return r.Data[0].URL
	}
	if len(r.Images) > 0 {
		return r.Images[0].URL
	}
	return ""
}
