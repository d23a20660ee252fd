// Package logging wires the process logger.
//
// Two formats are supported: a plain text handler for interactive use, and
// an OpenTelemetry log pipeline with a stdout exporter so runs can feed the
// same collectors as the rest of a CI fleet.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

const instrumentationName = "fabricsim"

const (
	FormatText = "text"
	FormatOTel = "otel"
)

// Options configures Setup. A nil Writer means os.Stderr.
type Options struct {
	Level  slog.Level
	Format string
	Writer io.Writer
}

// Setup builds the process logger and returns it with a shutdown function
// that flushes any buffered records.
func Setup(opts Options) (*slog.Logger, func(context.Context) error, error) {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	noop := func(context.Context) error { return nil }

	switch opts.Format {
	case "", FormatText:
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
		return slog.New(h), noop, nil
	case FormatOTel:
		exp, err := stdoutlog.New(stdoutlog.WithWriter(w))
		if err != nil {
			return nil, nil, fmt.Errorf("creating log exporter: %w", err)
		}
		provider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)),
		)
		logger := otelslog.NewLogger(instrumentationName,
			otelslog.WithLoggerProvider(provider))
		return logger, provider.Shutdown, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}
