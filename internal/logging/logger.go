package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the handler and the attributes stamped on every record.
type Options struct {
	Level   string
	Format  string
	Service string
	Env     string
}

// New creates a slog logger configured at the provided level. JSON output is
// the default; Format "text" switches to the human readable handler. If the
// level string is invalid it defaults to info.
func New(opts Options) *slog.Logger {
	return newWithWriter(os.Stdout, opts)
}

func newWithWriter(w io.Writer, opts Options) *slog.Logger {
	lvl := new(slog.LevelVar)
	if err := lvl.UnmarshalText([]byte(opts.Level)); err != nil {
		lvl.Set(slog.LevelInfo)
	}

	handlerOpts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(w, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(w, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	if opts.Env != "" {
		logger = logger.With(slog.String("env", opts.Env))
	}
	return logger
}

// Discard returns a logger that drops all output. Useful for tests.
func Discard() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}
