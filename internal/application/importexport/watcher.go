package importexport

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/config"
	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// settleWindow is how long a dropped file must sit unchanged before the
// watcher imports it. Uploads over SMB/scp arrive in bursts of writes.
const settleWindow = 2 * time.Second

// Importer is the slice of Service the watcher drives.
type Importer interface {
	Import(ctx context.Context, treeID int64, r io.Reader, source string, author uuid.UUID) (*ImportResult, error)
}

// Watcher imports *.ged files dropped into a configured directory. Each
// file is imported into the configured tree once its writes settle, then
// renamed so it is not picked up again.
type Watcher struct {
	imports Importer
	trees   tree.TreeRepository
	cfg     config.ImportConfig
	log     logging.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]time.Time

	fw     *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher wires the import-folder watcher. Start creates the underlying
// filesystem watcher; construction alone allocates nothing external.
func NewWatcher(imports Importer, trees tree.TreeRepository, cfg config.ImportConfig, log logging.Logger) *Watcher {
	return &Watcher{
		imports: imports,
		trees:   trees,
		cfg:     cfg,
		log:     log.Named("import-watcher"),
		now:     time.Now,
		pending: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins watching. It returns once the directory is registered; the
// event loop runs until Stop or ctx cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	if w.cfg.WatchDir == "" {
		return errors.New(errors.ErrCodeValidation, "import watch directory is not configured")
	}
	if err := os.MkdirAll(w.cfg.WatchDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create import watch directory")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create filesystem watcher")
	}
	if err := fw.Add(w.cfg.WatchDir); err != nil {
		fw.Close()
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to watch import directory").WithDetail(w.cfg.WatchDir)
	}
	w.fw = fw

	// Files already sitting in the directory get imported too.
	if err := w.scanExisting(); err != nil {
		w.log.Warn("initial directory scan failed", logging.Err(err))
	}

	w.log.Info("watching for GEDCOM drops",
		logging.String("dir", w.cfg.WatchDir),
		logging.String("tree", w.cfg.WatchTreeName))
	go w.run(ctx)
	return nil
}

// Stop ends the event loop and releases the filesystem watcher.
func (w *Watcher) Stop() {
	if w.fw == nil {
		return
	}
	close(w.stopCh)
	<-w.doneCh
	if err := w.fw.Close(); err != nil {
		w.log.Warn("watcher close failed", logging.Err(err))
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(settleWindow / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", logging.Err(err))
		case <-tick.C:
			for _, path := range w.drainSettled() {
				w.importFile(ctx, path)
			}
		}
	}
}

// handleEvent queues a .ged file for import once its writes settle.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isGedcomFile(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	w.pending[ev.Name] = w.now()
	w.mu.Unlock()
}

// drainSettled returns the queued paths whose last event is older than the
// settle window and removes them from the queue.
func (w *Watcher) drainSettled() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	cutoff := w.now().Add(-settleWindow)
	for path, last := range w.pending {
		if last.Before(cutoff) || last.Equal(cutoff) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// scanExisting queues .ged files that were in the directory before the
// watcher started.
func (w *Watcher) scanExisting() error {
	entries, err := os.ReadDir(w.cfg.WatchDir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || !isGedcomFile(e.Name()) {
			continue
		}
		path := filepath.Join(w.cfg.WatchDir, e.Name())
		w.pending[path] = w.now()
	}
	return nil
}

// importFile runs one import and renames the file by outcome, so a file is
// imported at most once.
func (w *Watcher) importFile(ctx context.Context, path string) {
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.log.Warn("dropped file unreadable", logging.String("path", path), logging.Err(err))
		}
		return
	}
	defer f.Close()

	if info, err := f.Stat(); err == nil && w.cfg.MaxFileSize > 0 && info.Size() > w.cfg.MaxFileSize {
		w.log.Warn("dropped file exceeds size limit",
			logging.String("path", path),
			logging.Int64("size", info.Size()),
			logging.Int64("limit", w.cfg.MaxFileSize))
		w.setAside(path, ".rejected")
		return
	}

	t, err := w.trees.GetByName(ctx, w.cfg.WatchTreeName)
	if err != nil {
		w.log.Error("watch tree not found; file left in place",
			logging.String("tree", w.cfg.WatchTreeName), logging.Err(err))
		return
	}

	result, err := w.imports.Import(ctx, t.ID, f, filepath.Base(path), uuid.Nil)
	if err != nil {
		w.log.Error("auto-import failed", logging.String("path", path), logging.Err(err))
		w.setAside(path, ".rejected")
		return
	}

	w.log.Info("auto-import finished",
		logging.String("path", path),
		logging.Int("records", result.Total))
	if w.cfg.KeepOriginals {
		w.setAside(path, ".imported")
	} else if err := os.Remove(path); err != nil {
		w.log.Warn("imported file not removed", logging.String("path", path), logging.Err(err))
	}
}

// setAside renames a processed file out of the *.ged namespace.
func (w *Watcher) setAside(path, suffix string) {
	if err := os.Rename(path, path+suffix); err != nil {
		w.log.Warn("processed file not renamed",
			logging.String("path", path), logging.Err(err))
	}
}

func isGedcomFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ged")
}
