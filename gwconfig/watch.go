package gwconfig

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a backends file on write and hands the newly parsed
// BackendGroups to onChange. Realizes "backends may be added and removed at
// runtime" from a file edit, not just the management API (SPEC_FULL.md §3).
type Watcher struct {
	watcher      *fsnotify.Watcher
	backendsPath string
	logger       zerolog.Logger
	onChange     func(groups BackendGroups)
	done         chan struct{}
}

func NewWatcher(backendsPath string, logger zerolog.Logger, onChange func(groups BackendGroups)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(backendsPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:      fsw,
		backendsPath: backendsPath,
		logger:       logger.With().Str("component", "config_watch").Logger(),
		onChange:     onChange,
		done:         make(chan struct{}),
	}, nil
}

func (w *Watcher) Start() {
	go w.loop()
}

func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)
	target := filepath.Clean(w.backendsPath)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("config watch error")
		}
	}
}

func (w *Watcher) reload() {
	data, err := readBackendGroups(w.backendsPath)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.backendsPath).Msg("failed to reload backends file")
		return
	}
	w.logger.Info().Str("path", w.backendsPath).Msg("backends file changed, reloading")
	w.onChange(data)
}
