// Package activity records which files change under a directory while an
// agent runs.
package activity

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sync"

	"github.com/Iron-Ham/agentline/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultIgnore lists directory and file names never recorded or descended into.
var DefaultIgnore = []string{".git", ".agentline", "node_modules", ".DS_Store"}

// Recorder watches a directory tree and collects the relative paths of
// files that were created, written, renamed or removed.
type Recorder struct {
	root    string
	watcher *fsnotify.Watcher
	ignore  []string
	logger  *logging.Logger

	mu      sync.Mutex
	touched map[string]struct{}

	stopOnce sync.Once
	done     chan struct{}
}

// New creates a Recorder for root. Nothing is watched until Start.
func New(root string, logger *logging.Logger) (*Recorder, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Recorder{
		root:    root,
		watcher: watcher,
		ignore:  DefaultIgnore,
		logger:  logger,
		touched: make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// Start watches root and every directory below it, then begins
// collecting events in a background goroutine.
func (r *Recorder) Start() error {
	if err := r.watchTree(r.root); err != nil {
		_ = r.watcher.Close()
		close(r.done)
		return err
	}
	go r.loop()
	return nil
}

// Stop ends the watch and returns the touched paths, sorted. It is safe to
// call more than once.
func (r *Recorder) Stop() []string {
	r.stopOnce.Do(func() {
		_ = r.watcher.Close()
		<-r.done
	})
	return r.Touched()
}

// Touched returns the paths recorded so far, sorted and relative to root
// with '/' separators.
func (r *Recorder) Touched() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.touched))
	for p := range r.touched {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (r *Recorder) watchTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && r.ignored(d.Name()) {
			return filepath.SkipDir
		}
		if err := r.watcher.Add(p); err != nil && p == root {
			return err
		}
		return nil
	})
}

func (r *Recorder) loop() {
	defer close(r.done)
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			r.handle(event)
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("file watch error", "root", r.root, "error", err.Error())
		}
	}
}

func (r *Recorder) handle(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel, ok := r.relative(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			r.addDir(event.Name)
			return
		}
	}
	r.record(rel)
}

// addDir watches a directory created during the run and records the files
// already inside it, since they may predate the watch.
func (r *Recorder) addDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if r.ignored(d.Name()) {
				return filepath.SkipDir
			}
			_ = r.watcher.Add(p)
			return nil
		}
		if rel, ok := r.relative(p); ok {
			r.record(rel)
		}
		return nil
	})
}

func (r *Recorder) relative(p string) (string, bool) {
	rel, err := filepath.Rel(r.root, p)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if r.ignoredPath(rel) {
		return "", false
	}
	return rel, true
}

func (r *Recorder) record(rel string) {
	r.mu.Lock()
	r.touched[rel] = struct{}{}
	r.mu.Unlock()
}

func (r *Recorder) ignored(name string) bool {
	return slices.Contains(r.ignore, name)
}

func (r *Recorder) ignoredPath(rel string) bool {
	for dir := rel; dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		if r.ignored(path.Base(dir)) {
			return true
		}
	}
	return false
}
