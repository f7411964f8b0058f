// Package watch compiles target images as they appear in watched directories.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/menta2k/webar-studio/internal/utils"
	"github.com/menta2k/webar-studio/pkg/compiler"
	"github.com/menta2k/webar-studio/pkg/raster"
)

// Event reports the outcome of compiling one file
type Event struct {
	Path       string    `json:"path"`
	Artifact   string    `json:"artifact,omitempty"`
	Strategy   string    `json:"strategy,omitempty"`
	Points     int       `json:"points"`
	LowTexture bool      `json:"lowTexture"`
	Err        error     `json:"-"`
	Time       time.Time `json:"time"`
}

// Options configures a Watcher
type Options struct {
	OutputDir       string        // artifacts go next to their source when empty
	Debounce        time.Duration // quiet period before a changed file is compiled
	CompileExisting bool          // compile images without an artifact at startup
	Logger          *slog.Logger
}

// Watcher monitors directories and compiles images dropped into them
type Watcher struct {
	watcher  *fsnotify.Watcher
	compiler compiler.Compiler
	dirs     []string
	opts     Options
	log      *slog.Logger
	events   chan Event

	mu      sync.Mutex
	pending map[string]time.Time
}

// New creates a Watcher over dirs
func New(c compiler.Compiler, dirs []string, opts Options) (*Watcher, error) {
	if c == nil {
		return nil, errors.New("compiler is required")
	}
	if len(dirs) == 0 {
		return nil, errors.New("at least one directory is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:  watcher,
		compiler: c,
		dirs:     dirs,
		opts:     opts,
		log:      opts.Logger,
		events:   make(chan Event, 100),
		pending:  make(map[string]time.Time),
	}, nil
}

// Events delivers one Event per compiled file. It is closed when Run returns.
// Run blocks while the buffer is full, so callers must keep receiving.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)
	defer w.watcher.Close()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.log.Info("watching directory", "dir", dir)
	}

	if w.opts.CompileExisting {
		w.compileExisting(ctx)
	}

	ticker := time.NewTicker(w.opts.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !utils.IsImageFile(event.Name) {
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = time.Now()
			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("filesystem watcher error", "error", err)

		case now := <-ticker.C:
			for _, path := range w.settled(now) {
				w.emit(ctx, w.CompileFile(ctx, path))
			}
		}
	}
}

// settled removes and returns the pending paths quiet for the debounce period
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.opts.Debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

func (w *Watcher) compileExisting(ctx context.Context) {
	for _, dir := range w.dirs {
		files, err := utils.ListImageFiles(dir)
		if err != nil {
			w.log.Warn("scan failed", "dir", dir, "error", err)
			continue
		}
		for _, path := range files {
			if utils.HasArtifact(path, w.opts.OutputDir) {
				continue
			}
			w.emit(ctx, w.CompileFile(ctx, path))
		}
	}
}

func (w *Watcher) emit(ctx context.Context, ev Event) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
		w.log.Debug("watcher stopping, event not delivered", "path", ev.Path)
	}
}

// CompileFile compiles the image at path and writes its artifact
func (w *Watcher) CompileFile(ctx context.Context, path string) Event {
	ev := Event{Path: path, Points: -1, Time: time.Now()}

	data, err := os.ReadFile(path)
	if err != nil {
		ev.Err = err
		w.log.Warn("read failed", "path", path, "error", err)
		return ev
	}
	img, err := raster.DecodeImage(data)
	if err != nil {
		ev.Err = err
		w.log.Warn("skipping undecodable image", "path", path, "error", err)
		return ev
	}

	res, err := w.compiler.Compile(ctx, img, nil)
	if err != nil {
		ev.Err = err
		w.log.Error("compile failed", "path", path, "error", err)
		return ev
	}

	if w.opts.OutputDir != "" {
		if err := utils.EnsureDir(w.opts.OutputDir); err != nil {
			ev.Err = err
			return ev
		}
	}
	out := utils.ArtifactPath(path, w.opts.OutputDir, res.Artifact.Format)
	if err := os.WriteFile(out, res.Artifact.Data, 0644); err != nil {
		ev.Err = fmt.Errorf("write artifact: %w", err)
		return ev
	}

	ev.Artifact = out
	ev.Strategy = res.Strategy
	ev.Points = res.PointCount()
	ev.LowTexture = res.LowTexture
	w.log.Info("compile finished",
		"source", path,
		"artifact", out,
		"strategy", res.Strategy,
		"points", ev.Points,
		"size", utils.FormatFileSize(int64(len(res.Artifact.Data))),
	)
	return ev
}
