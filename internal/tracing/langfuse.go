// Package tracing wires optional Langfuse tracing into the eino callback
// system, so the SDK-backed providers (ark, openai, ollama, gemini) report
// their model calls when Langfuse credentials are configured.
package tracing

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

const defaultHost = "http://localhost:3000"

// Config holds the Langfuse credentials.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler if both keys are set.
// The returned flush function must be called before process exit so buffered
// traces are sent. When Langfuse is not configured the handler and flush are
// nil and ok is false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flush, true
}

var installOnce sync.Once

// Install registers the Langfuse handler as an eino global callback. It is a
// no-op without credentials and registers at most once per process. The
// returned function flushes pending traces and is always safe to call.
func Install(cfg Config, log *slog.Logger) func() {
	handler, flush, ok := Setup(cfg)
	if !ok {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}
	installOnce.Do(func() {
		callbacks.AppendGlobalHandlers(handler)
		log.Info("tracing: langfuse enabled", slog.String("host", cfg.Host))
	})
	return flush
}
