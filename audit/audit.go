package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Tag classifies an audit line.
type Tag string

const (
	TagHit    Tag = "hit"
	TagSet    Tag = "set"
	TagDelete Tag = "delete"
	TagExpire Tag = "expire"
	TagFlush  Tag = "flush"
	TagError  Tag = "error"
)

// TimeLayout is the timestamp layout at the start of every line.
const TimeLayout = "2006-01-02 15:04:05 MST"

// Config configures a Log.
type Config struct {
	// Enabled turns the log on. A disabled Log performs no file I/O.
	Enabled bool

	// Path is the log file. Its directory is created on first write.
	Path string

	// MaxSize is the size in bytes at or above which the next write
	// truncates the file instead of appending. Zero disables the limit.
	MaxSize int64

	// TruncateOnFlush makes a flush line start a fresh file.
	TruncateOnFlush bool

	// Now is the clock for timestamps. Default: time.Now.
	Now func() time.Time
}

// Log is an append-only diagnostic trail of cache operations.
//
// Each line looks like:
//
//	[2024-01-02 15:04:05 UTC] set: "options:alloptions" "3a9f1c2b7d4e-0c1d2e3f4a5b" "/wp-admin/"
//
// A line identical to one already written by this Log is not written again.
type Log struct {
	cfg  Config
	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a Log.
func New(cfg Config) *Log {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Log{cfg: cfg, seen: make(map[string]struct{})}
}

// Disabled returns a Log that records nothing.
func Disabled() *Log {
	return New(Config{})
}

// Enabled reports whether the log writes anything.
func (l *Log) Enabled() bool {
	return l != nil && l.cfg.Enabled && l.cfg.Path != ""
}

// Path returns the configured log file.
func (l *Log) Path() string {
	return l.cfg.Path
}

// Record appends one line. It returns nil without touching the filesystem
// when the log is disabled or the line is a duplicate.
func (l *Log) Record(ctx context.Context, tag Tag, id, payload string) error {
	if !l.Enabled() {
		return nil
	}

	line := l.format(ctx, tag, id, payload)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, dup := l.seen[line]; dup {
		return nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if l.shouldTruncate(tag) {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	if err := os.MkdirAll(filepath.Dir(l.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("audit: create log dir: %w", err)
	}
	f, err := os.OpenFile(l.cfg.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open log: %w", err)
	}
	_, werr := f.WriteString(line + "\n")
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("audit: write log: %w", err)
	}

	l.seen[line] = struct{}{}
	return nil
}

func (l *Log) shouldTruncate(tag Tag) bool {
	info, err := os.Stat(l.cfg.Path)
	if err != nil {
		// Nothing to truncate; O_CREATE handles a missing file.
		return false
	}
	if tag == TagFlush && l.cfg.TruncateOnFlush {
		return true
	}
	return l.cfg.MaxSize > 0 && info.Size() >= l.cfg.MaxSize
}

func (l *Log) format(ctx context.Context, tag Tag, id, payload string) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(l.cfg.Now().Format(TimeLayout))
	b.WriteString("] ")
	b.WriteString(string(tag))
	b.WriteString(`: "`)
	b.WriteString(id)
	b.WriteString(`" "`)
	b.WriteString(strings.TrimSpace(payload))
	b.WriteString(`"`)
	if req := RequestFrom(ctx); req != "" {
		b.WriteString(` "`)
		b.WriteString(req)
		b.WriteString(`"`)
	}
	return b.String()
}

type requestKey struct{}

// WithRequest attaches a short request-context string (typically the request
// URI) that is appended to every line recorded with ctx.
func WithRequest(ctx context.Context, request string) context.Context {
	return context.WithValue(ctx, requestKey{}, request)
}

// RequestFrom returns the request-context string attached to ctx, if any.
func RequestFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(requestKey{}).(string)
	return s
}
