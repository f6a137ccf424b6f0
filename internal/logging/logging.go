// Package logging builds the process logger and carries it through
// request and pipeline contexts.
//
// Environment variables:
//
//	LOG_LEVEL  = debug | info | warn | error  (default: info)
//	LOG_FORMAT = json | text                  (default: json)
//	LOG_SOURCE = true | false                 (default: false)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type ctxKey struct{}

// Service is attached to every record so logs from the server and the
// CLI can be told apart from sidecars in a shared sink.
const Service = "eatwhat"

const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values are replaced with redacted.
var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"token":         true,
	"access_token":  true,
}

// New returns a logger writing to stderr, configured from the environment.
func New() *slog.Logger {
	return NewWriter(os.Stderr)
}

// NewWriter is [New] with an explicit destination.
func NewWriter(w io.Writer) *slog.Logger {
	source, _ := strconv.ParseBool(os.Getenv("LOG_SOURCE"))
	opts := &slog.HandlerOptions{
		Level:       parseLevel(os.Getenv("LOG_LEVEL")),
		AddSource:   source,
		ReplaceAttr: redact,
	}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("service", Service))
}

// redact is a slog ReplaceAttr hook masking credentials.
func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or [slog.Default].
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With returns a copy of ctx whose logger also carries attrs.
func With(ctx context.Context, attrs ...any) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(attrs...))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	switch strings.ToLower(s) {
	case "warning":
		return slog.LevelWarn
	case "":
		return slog.LevelInfo
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
