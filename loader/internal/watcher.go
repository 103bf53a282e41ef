package internal

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"legischat/types"
)

type FileEvent struct {
	Path    string
	DocType types.DocType
}

type fileState struct {
	firstSeen time.Time
	modTime   time.Time
	size      int64
	sent      bool
}

// Watcher polls corpus directories and reports a file once it has been
// unchanged for the settle period. A reported file is not reported again
// until it is modified or removed and recreated.
type Watcher struct {
	dirs     map[string]types.DocType
	interval time.Duration
	settle   time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	files map[string]*fileState
	now   func() time.Time
}

func NewWatcher(dirs map[string]types.DocType, interval, settle time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dirs:     dirs,
		interval: interval,
		settle:   settle,
		logger:   logger,
		files:    make(map[string]*fileState),
		now:      time.Now,
	}
}

// Watch scans until ctx is done. It does not close out.
func (w *Watcher) Watch(ctx context.Context, out chan<- FileEvent) {
	w.logger.Info("[WATCH] start monitoring", "dirs", len(w.dirs), "settle", w.settle)
	defer w.logger.Info("[WATCH] stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		for _, ev := range w.Scan() {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Scan performs one polling pass and returns the files that became ready.
func (w *Watcher) Scan() []FileEvent {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	current := make(map[string]bool)
	var ready []FileEvent

	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			w.logger.Debug("[WATCH] cannot read directory", "dir", dir, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !types.SupportedFile(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			path := filepath.Join(dir, e.Name())
			current[path] = true

			st, ok := w.files[path]
			if !ok || !st.modTime.Equal(info.ModTime()) || st.size != info.Size() {
				if !ok {
					w.logger.Info("[WATCH] new file detected", "path", path)
				}
				w.files[path] = &fileState{firstSeen: now, modTime: info.ModTime(), size: info.Size()}
				continue
			}
			if st.sent || now.Sub(st.firstSeen) < w.settle {
				continue
			}
			st.sent = true
			ready = append(ready, FileEvent{Path: path, DocType: w.dirs[dir]})
		}
	}

	for path := range w.files {
		if !current[path] {
			delete(w.files, path)
			w.logger.Debug("[WATCH] file removed from tracking", "path", path)
		}
	}
	return ready
}
