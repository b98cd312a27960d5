package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultWatchInterval is how often a [Watcher] stats the config file.
const DefaultWatchInterval = 5 * time.Second

// Watcher keeps a running server in step with its config file. Only
// server.log_level and the interview section are applied while sessions are
// running; edits to any other section are reported as needing a restart and
// are otherwise ignored. [Watcher.Current] therefore always describes the
// configuration the process is actually using.
type Watcher struct {
	path     string
	interval time.Duration
	apply    func(ConfigDiff)
	log      *slog.Logger

	// reload serialises Reload between the poll loop and explicit callers.
	reload sync.Mutex

	mu      sync.Mutex
	current *Config
	sum     [sha256.Size]byte
	stamp   fileStamp

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// fileStamp is the cheap part of change detection; content is only hashed
// when it moves.
type fileStamp struct {
	mod  time.Time
	size int64
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. Non-positive values keep
// [DefaultWatchInterval].
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithWatchLogger sets the logger for reload reports. Defaults to
// slog.Default().
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher loads and validates the file at path and starts polling it.
// apply receives the hot-reloadable part of every accepted change and is
// never called for restart-only edits. It may be nil.
func NewWatcher(path string, apply func(ConfigDiff), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: DefaultWatchInterval,
		apply:    apply,
		log:      slog.Default(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	data, stamp, err := readStamped(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watch %q: %w", path, err)
	}
	w.current, w.sum, w.stamp = cfg, sha256.Sum256(data), stamp

	go w.poll()
	return w, nil
}

// Current returns the configuration in effect.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-progress reload to finish. It is
// idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.stopped
}

func (w *Watcher) poll() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if !w.modified() {
				continue
			}
			if err := w.Reload(); err != nil {
				w.log.Warn("config reload rejected, keeping the running configuration", "err", err)
			}
		}
	}
}

func (w *Watcher) modified() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.log.Warn("config reload: cannot stat file", "path", w.path, "err", err)
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return !stampOf(info).equal(w.stamp)
}

// Reload reads the file now, whether or not it looks modified. An invalid
// file is rejected as a whole and the running configuration stays in
// effect. On success the log level and interview defaults are taken from
// the file, apply is called when either changed, and the remaining sections
// keep their running values.
func (w *Watcher) Reload() error {
	w.reload.Lock()
	defer w.reload.Unlock()

	data, stamp, err := readStamped(w.path)
	if err != nil {
		return fmt.Errorf("config: reload %q: %w", w.path, err)
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	same := sum == w.sum
	// A rejected edit is reported once, not on every tick.
	w.stamp = stamp
	w.mu.Unlock()
	if same {
		return nil
	}

	next, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("config: reload %q: %w", w.path, err)
	}

	w.mu.Lock()
	d := Diff(w.current, next)
	effective := *w.current
	effective.Server.LogLevel = next.Server.LogLevel
	effective.Interview = next.Interview
	w.current = &effective
	w.sum = sum
	w.mu.Unlock()

	if len(d.RestartRequired) > 0 {
		w.log.Warn("config sections changed that need a restart to apply",
			"path", w.path, "sections", d.RestartRequired)
	}
	if !d.LogLevelChanged && !d.InterviewChanged {
		return nil
	}
	w.log.Info("config reloaded", "path", w.path,
		"log_level_changed", d.LogLevelChanged, "interview_changed", d.InterviewChanged)
	if w.apply != nil {
		w.apply(d)
	}
	return nil
}

func readStamped(path string) ([]byte, fileStamp, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fileStamp{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fileStamp{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileStamp{}, err
	}
	return data, stampOf(info), nil
}

func stampOf(info os.FileInfo) fileStamp {
	return fileStamp{mod: info.ModTime(), size: info.Size()}
}

func (s fileStamp) equal(o fileStamp) bool {
	return s.size == o.size && s.mod.Equal(o.mod)
}
