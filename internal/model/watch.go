package model

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch calls onChange with a fresh listing whenever the models directory or
// one of its model sub-directories changes. Bursts of events are collapsed
// into one refresh per debounce window. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, debounce time.Duration, onChange func([]Installed)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("watch models dir: %w", err)
	}
	s.addModelDirs(w)

	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
					_ = w.Add(ev.Name)
				}
			}
			if !pending {
				pending = true
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("models: watcher error")
		case <-timer.C:
			pending = false
			list, err := s.List()
			if err != nil {
				log.Warn().Err(err).Msg("models: refresh failed")
				continue
			}
			log.Debug().Int("models", len(list)).Msg("models: directory changed")
			onChange(list)
		}
	}
}

func (s *Store) addModelDirs(w *fsnotify.Watcher) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.Add(filepath.Join(s.dir, e.Name()))
		}
	}
}
