package natives

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// libWatcher reloads libraries when their files are rewritten on disk.
// Reloads are not applied in the notification goroutine; they are posted to
// the engine's queue and happen when the host next drains it, so load and
// unload stay on the host's chosen thread.
type libWatcher struct {
	fsw    *fsnotify.Watcher
	byPath map[string]string // resolved path -> library name
	done   chan struct{}
}

func (e *Engine) startWatcher() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	byPath := make(map[string]string)
	dirs := make(map[string]struct{})
	e.mu.RLock()
	libs := e.libs
	order := e.order
	e.mu.RUnlock()
	for _, name := range order {
		lib := libs[name]
		lib.mu.Lock()
		path, perr := e.resolvePath(lib)
		lib.mu.Unlock()
		if perr != nil {
			continue
		}
		// Bare sonames resolve through the platform search path; there is
		// no single file to watch.
		if !strings.ContainsAny(path, `/\`) {
			continue
		}
		byPath[path] = name
		dirs[filepath.Dir(path)] = struct{}{}
	}

	// Watch parent directories: editors and linkers typically replace the
	// file, and a watch on the old inode would go stale.
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			e.log.Warn("watch failed", zap.String("dir", dir), zap.Error(err))
		}
	}

	w := &libWatcher{fsw: fsw, byPath: byPath, done: make(chan struct{})}
	e.mu.Lock()
	e.watcher = w
	e.mu.Unlock()

	go w.run(e)
	return nil
}

func (w *libWatcher) run(e *Engine) {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, tracked := w.byPath[filepath.Clean(ev.Name)]
			if !tracked {
				continue
			}
			e.log.Info("library changed on disk, scheduling reload", zap.String("library", name))
			e.queue.Post(func() {
				// A library that is not loaded needs nothing: the next
				// lazy dispatch will open the new file.
				if !e.IsLoaded(name) {
					return
				}
				if err := e.Reload(name); err != nil {
					e.log.Warn("scheduled reload failed", zap.String("library", name), zap.Error(err))
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			e.log.Warn("library watcher error", zap.Error(err))
		}
	}
}

func (w *libWatcher) stop() {
	close(w.done)
	_ = w.fsw.Close()
}
