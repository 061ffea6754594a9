// Package logging builds the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level  string
	Pretty bool
	File   string
	App    string
}

// New returns the root logger. An unknown level falls back to info. When
// File is set, entries are also written there as JSON with rotation.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	return newWithStdout(cfg, os.Stdout)
}

func newWithStdout(cfg Config, stdout io.Writer) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	var out io.Writer = console
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, file)
		closer = file
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if cfg.App != "" {
		ctx = ctx.Str("app", cfg.App)
	}
	return ctx.Logger(), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
