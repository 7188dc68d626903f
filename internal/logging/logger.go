package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"earmark/internal/config"
)

const logFileName = "earmark.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives human-facing output. Defaults to stderr so stdout stays
	// reserved for command results.
	Console io.Writer
	// FilePath, when set, receives a JSON copy of every record regardless of Format.
	FilePath string
}

// New constructs a slog logger using the provided options. Debug level turns
// on source locations.
func New(opts Options) (*slog.Logger, error) {
	level := new(slog.LevelVar)
	level.Set(parseLevel(opts.Level))
	addSource := level.Level() <= slog.LevelDebug

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var primary slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "console":
		primary = newConsoleHandler(console, level, addSource)
	case "json":
		primary = newJSONHandler(console, level, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	path := strings.TrimSpace(opts.FilePath)
	if path == "" {
		return slog.New(primary), nil
	}
	file, err := openLogFile(path)
	if err != nil {
		return nil, err
	}
	return slog.New(newTeeHandler(primary, newJSONHandler(file, level, addSource))), nil
}

// NewFromConfig builds the application logger: console output on stderr plus
// a JSON log file under the configured log directory.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info"})
	}
	opts := Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format}
	if cfg.Paths.LogDir != "" {
		opts.FilePath = filepath.Join(cfg.Paths.LogDir, logFileName)
	}
	return New(opts)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// newJSONHandler writes records with short keys ("ts", "level", "msg") and
// UTC RFC 3339 timestamps, the shape `earmark logs` reads back.
func newJSONHandler(w io.Writer, level slog.Leveler, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				attr.Key = "ts"
				if attr.Value.Kind() == slog.KindTime {
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(sourceLabel(src.File, src.Line))
				}
			}
			return attr
		},
	})
}

// consoleHandler renders one line per record:
//
//	2026-01-02T15:04:05Z INFO monitor: job tracked job_id=abc interval=2s
//
// Attributes bound through WithAttrs are rendered once and reused.
type consoleHandler struct {
	out       *syncWriter
	level     slog.Leveler
	addSource bool
	component string
	bound     string
	groups    []string
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.w.Write(p)
	return err
}

func newConsoleHandler(w io.Writer, level slog.Leveler, addSource bool) *consoleHandler {
	return &consoleHandler{out: &syncWriter{w: w}, level: level, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	component := h.component
	var attrs strings.Builder
	attrs.WriteString(h.bound)
	record.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&attrs, &component, h.groups, attr)
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var line strings.Builder
	line.WriteString(ts.UTC().Format(time.RFC3339))
	line.WriteByte(' ')
	line.WriteString(levelLabel(record.Level))
	line.WriteByte(' ')
	if component != "" {
		line.WriteString(component)
		line.WriteString(": ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		line.WriteString(msg)
	} else {
		line.WriteString("(no message)")
	}
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			line.WriteString(" [")
			line.WriteString(sourceLabel(src.File, src.Line))
			line.WriteByte(']')
		}
	}
	line.WriteString(attrs.String())
	line.WriteByte('\n')
	return h.out.write([]byte(line.String()))
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	var bound strings.Builder
	bound.WriteString(h.bound)
	for _, attr := range attrs {
		h.appendAttr(&bound, &next.component, h.groups, attr)
	}
	next.bound = bound.String()
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string(nil), h.groups...), name)
	return &next
}

// appendAttr writes " key=value" for attr, flattening groups into dotted keys.
// A top-level component attribute becomes the line prefix instead.
func (h *consoleHandler) appendAttr(b *strings.Builder, component *string, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	if attr.Value.Kind() == slog.KindGroup {
		inner := groups
		if attr.Key != "" {
			inner = append(append([]string(nil), groups...), attr.Key)
		}
		for _, member := range attr.Value.Group() {
			h.appendAttr(b, component, inner, member)
		}
		return
	}
	if len(groups) == 0 && attr.Key == FieldComponent {
		if *component == "" {
			*component = attr.Value.String()
		}
		return
	}
	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(append(append([]string(nil), groups...), key), ".")
	}
	if key == "" {
		return
	}
	b.WriteByte(' ')
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(formatValue(attr.Value))
}

func formatValue(v slog.Value) string {
	var s string
	switch v.Kind() {
	case slog.KindString:
		s = v.String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			s = err.Error()
		} else {
			s = fmt.Sprint(v.Any())
		}
	default:
		return v.String()
	}
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	return s == "" || strings.ContainsFunc(s, func(r rune) bool {
		return r <= ' ' || r == '=' || r == '"'
	})
}

func sourceLabel(file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
