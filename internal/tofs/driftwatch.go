package tofs

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"codenerd-core/internal/logging"
)

// DriftWatcher feeds snapshot invalidation from filesystem events instead
// of waiting for the next synchronous CheckDrift call: while a
// transaction is open, any external write to a snapshotted path triggers
// the drift check immediately and reports the result through a callback.
// The synchronous CheckDrift path stays authoritative; the watcher only
// moves detection earlier.
type DriftWatcher struct {
	txn     *Transaction
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// WatchDrift starts watching the on-disk counterparts of every currently
// snapshotted path in txn. onDrift is invoked (from the watcher
// goroutine) with the workspace-relative path and the ExternalDrift
// error whenever a watched file's content no longer matches its
// snapshot. Callers must Close the watcher before disposing the
// transaction.
func WatchDrift(txn *Transaction, onDrift func(path string, err error)) (*DriftWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, newErr(KindExternalDrift, "", err)
	}

	txn.mu.Lock()
	paths := make([]string, 0, len(txn.snapshots))
	for p := range txn.snapshots {
		paths = append(paths, p)
	}
	txn.mu.Unlock()

	// fsnotify watches directories more reliably than bare files across
	// editors that replace-on-save; watch each snapshotted file's parent.
	dirs := map[string]struct{}{}
	for _, p := range paths {
		dirs[filepath.Dir(filepath.Join(txn.Root, p))] = struct{}{}
	}
	for d := range dirs {
		if aerr := w.Add(d); aerr != nil {
			w.Close()
			return nil, newErr(KindExternalDrift, d, aerr)
		}
	}

	dw := &DriftWatcher{txn: txn, watcher: w, done: make(chan struct{})}
	go dw.loop(onDrift)
	return dw, nil
}

func (dw *DriftWatcher) loop(onDrift func(path string, err error)) {
	defer close(dw.done)
	for {
		select {
		case ev, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(dw.txn.Root, ev.Name)
			if err != nil {
				continue
			}
			rel = dw.txn.canon.Normalize(filepath.ToSlash(rel))
			dw.txn.mu.Lock()
			_, snapshotted := dw.txn.snapshots[rel]
			dw.txn.mu.Unlock()
			if !snapshotted {
				continue
			}
			if derr := dw.txn.CheckDrift(rel); derr != nil {
				logging.TOFS("drift watcher: external edit on %s", rel)
				onDrift(rel, derr)
			}
		case _, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watcher and waits for its event loop to exit.
func (dw *DriftWatcher) Close() error {
	err := dw.watcher.Close()
	<-dw.done
	return err
}
