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
)

// LogFileName names the pointer to the current daemon run's log inside the log directory.
const LogFileName = "dailete.log"

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// Console receives every record. Nil means stdout.
	Console io.Writer
	// File, when set, is opened in append mode and receives every record too.
	File        string
	Development bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w, err := openOutput(opts.Console, opts.File)
	if err != nil {
		return nil, err
	}
	addSource := opts.Development || level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(&jobHandler{out: &lockedWriter{w: w}, level: level, addSource: addSource}), nil
	case "json":
		return slog.New(newJSONHandler(w, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", level)
	}
}

func openOutput(console io.Writer, file string) (io.Writer, error) {
	if console == nil {
		console = os.Stdout
	}
	file = strings.TrimSpace(file)
	if file == "" {
		return console, nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", file, err)
	}
	return io.MultiWriter(console, f), nil
}

func newJSONHandler(w io.Writer, level slog.Level, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				if attr.Value.Kind() == slog.KindTime {
					attr.Key = "ts"
					attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
				}
			case slog.LevelKey:
				attr.Value = slog.StringValue(strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					attr.Value = slog.StringValue(filepath.Base(src.File) + ":" + strconv.Itoa(src.Line))
				}
			}
			return attr
		},
	})
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

// jobHandler renders one line per record:
//
//	2026-01-02T15:04:05Z WARN pipeline [pod/ep align] message key=value !sanity_guard
//
// The component and job scope are lifted out of the attribute list so that
// lines about the same episode line up when grepping. Impact always closes the
// field list, followed by the alert.
type jobHandler struct {
	out       *lockedWriter
	level     slog.Level
	addSource bool
	attrs     []slog.Attr
	group     string
}

func (h *jobHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jobHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(attr))
	}
	return &clone
}

func (h *jobHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.group = h.qualifyKey(name)
	return &clone
}

func (h *jobHandler) qualifyKey(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *jobHandler) qualify(attr slog.Attr) slog.Attr {
	attr.Key = h.qualifyKey(attr.Key)
	return attr
}

// jobLine collects the fields that get fixed positions in the line.
type jobLine struct {
	component string
	podcast   string
	episode   string
	stage     string
	alert     string
	impact    string
	rest      strings.Builder
}

func (l *jobLine) add(attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		for _, inner := range attr.Value.Group() {
			if attr.Key != "" {
				inner.Key = attr.Key + "." + inner.Key
			}
			l.add(inner)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	switch attr.Key {
	case FieldComponent:
		l.component = attr.Value.String()
	case FieldPodcastID:
		l.podcast = attr.Value.String()
	case FieldEpisodeID:
		l.episode = attr.Value.String()
	case FieldStage:
		l.stage = attr.Value.String()
	case FieldAlert:
		l.alert = attr.Value.String()
	case FieldImpact:
		l.impact = attr.Value.String()
	default:
		l.rest.WriteByte(' ')
		l.rest.WriteString(attr.Key)
		l.rest.WriteByte('=')
		l.rest.WriteString(quoteIfNeeded(valueText(attr.Value)))
	}
}

func (l *jobLine) scope() string {
	var parts []string
	switch {
	case l.podcast != "" && l.episode != "":
		parts = append(parts, l.podcast+"/"+l.episode)
	case l.podcast != "":
		parts = append(parts, l.podcast)
	case l.episode != "":
		parts = append(parts, l.episode)
	}
	if l.stage != "" {
		parts = append(parts, l.stage)
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (h *jobHandler) Handle(_ context.Context, record slog.Record) error {
	var line jobLine
	for _, attr := range h.attrs {
		line.add(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		line.add(h.qualify(attr))
		return true
	})

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var b strings.Builder
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(levelLabel(record.Level))
	if line.component != "" {
		b.WriteByte(' ')
		b.WriteString(line.component)
	}
	if scope := line.scope(); scope != "" {
		b.WriteByte(' ')
		b.WriteString(scope)
	}
	b.WriteByte(' ')
	if msg := strings.TrimSpace(record.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.addSource && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&b, " (%s:%d)", filepath.Base(src.File), src.Line)
		}
	}
	b.WriteString(line.rest.String())
	if line.impact != "" {
		b.WriteString(" impact=")
		b.WriteString(quoteIfNeeded(line.impact))
	}
	if line.alert != "" {
		b.WriteString(" !")
		b.WriteString(line.alert)
	}
	b.WriteByte('\n')
	return h.out.write([]byte(b.String()))
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
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
