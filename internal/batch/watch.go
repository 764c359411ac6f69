package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NHMDenmark/NHMDlabelreader/internal/imaging"
)

// DefaultSettle is how long a new file must stay unchanged before it is read.
const DefaultSettle = 500 * time.Millisecond

// Watcher processes photographs as a scanner drops them into Dir.
type Watcher struct {
	Dir string
	// Settle is the quiet period after the last write to a file. Zero means
	// DefaultSettle.
	Settle time.Duration
	// Existing also processes the images already in Dir, in name order,
	// before any new ones.
	Existing bool
	// Processed, if set, is called from the processing goroutine after
	// each file.
	Processed func(*Report, error)
}

// Watch is shorthand for a Watcher on dir with default settings.
func Watch(ctx context.Context, dir string, r *Runner) error {
	return (&Watcher{Dir: dir}).Run(ctx, r)
}

// Run feeds files created in w.Dir to r until ctx is cancelled. Files are
// processed one at a time in the order they first appeared, each once it has
// settled. The runner is not closed.
func (w *Watcher) Run(ctx context.Context, r *Runner) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.Dir, err)
	}

	if sameDir(w.Dir, r.opts.OutputDir) {
		return fmt.Errorf("output directory %s must differ from the watched directory", r.opts.OutputDir)
	}

	settle := w.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	log := r.log.WithField("dir", w.Dir)
	log.Info("watching for images")

	fileCh := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range fileCh {
			if ctx.Err() != nil {
				continue
			}
			rep, err := r.ProcessFile(p)
			if w.Processed != nil {
				w.Processed(rep, err)
			}
		}
	}()
	defer func() {
		close(fileCh)
		<-done
	}()

	q := newArrivals()
	if w.Existing {
		for _, p := range listImages(w.Dir) {
			q.seen[p] = true
			if !send(ctx, fileCh, p) {
				return ctx.Err()
			}
		}
	}

	ticker := time.NewTicker(settle / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 && imaging.IsImageFile(ev.Name) {
				q.touch(ev.Name, time.Now())
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("watch error")
		case now := <-ticker.C:
			for _, p := range q.ready(now, settle) {
				if !send(ctx, fileCh, p) {
					return ctx.Err()
				}
			}
		}
	}
}

func send(ctx context.Context, ch chan<- string, p string) bool {
	select {
	case ch <- p:
		return true
	case <-ctx.Done():
		return false
	}
}

func sameDir(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// arrivals queues files by first appearance and releases them in that order.
type arrivals struct {
	order []string
	last  map[string]time.Time
	seen  map[string]bool
}

func newArrivals() *arrivals {
	return &arrivals{last: map[string]time.Time{}, seen: map[string]bool{}}
}

func (a *arrivals) touch(path string, t time.Time) {
	if a.seen[path] {
		return
	}
	if _, ok := a.last[path]; !ok {
		a.order = append(a.order, path)
	}
	a.last[path] = t
}

// ready pops the settled files at the head of the queue. A file still being
// written holds back everything that arrived after it.
func (a *arrivals) ready(now time.Time, settle time.Duration) []string {
	var out []string
	for len(a.order) > 0 {
		p := a.order[0]
		if now.Sub(a.last[p]) < settle {
			break
		}
		out = append(out, p)
		a.order = a.order[1:]
		delete(a.last, p)
		a.seen[p] = true
	}
	return out
}

func listImages(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !imaging.IsImageFile(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out
}
