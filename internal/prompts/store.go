// ABOUTME: Directory-backed prompt template store with optional fsnotify hot reload
// ABOUTME: A reload that fails validation keeps the previously loaded set

package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

var (
	// ErrTemplateNotFound is returned when no template exists for a name.
	ErrTemplateNotFound = errors.New("prompt template not found")

	// ErrInvalidTemplate is returned when a template fails to decode or validate.
	ErrInvalidTemplate = errors.New("invalid prompt template")
)

const defaultDebounce = 250 * time.Millisecond

var formats = map[string]string{
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
}

// Store holds the templates found in a directory, keyed by file basename.
type Store struct {
	dir    string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template

	watchMu  sync.Mutex
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce time.Duration
}

// NewStore loads every template in dir. A missing directory yields an empty store;
// an invalid file is an error.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		dir:       dir,
		logger:    logger,
		templates: make(map[string]*Template),
		debounce:  defaultDebounce,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rereads the directory and swaps in the new set.
func (s *Store) Reload() error {
	loaded, err := loadDir(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.templates = loaded
	s.mu.Unlock()

	s.logger.Info("prompt templates loaded", "dir", s.dir, "count", len(loaded))
	return nil
}

func loadDir(dir string) (map[string]*Template, error) {
	loaded := make(map[string]*Template)
	if dir == "" {
		return loaded, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return loaded, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading prompt directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		format, ok := formats[ext]
		if !ok {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if _, dup := loaded[name]; dup {
			return nil, fmt.Errorf("%w: %s: defined by more than one file", ErrInvalidTemplate, name)
		}
		src, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading prompt %s: %w", entry.Name(), err)
		}
		t, err := Parse(name, format, src)
		if err != nil {
			return nil, err
		}
		loaded[name] = t
	}
	return loaded, nil
}

// Get returns the template loaded for name.
func (s *Store) Get(name string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	return t, nil
}

// Resolve returns the template for name, or the built-in fallback.
func (s *Store) Resolve(name string) *Template {
	t, err := s.Get(name)
	if err != nil {
		return Fallback(name)
	}
	return t
}

// Names lists the loaded template names in order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the store when files in its directory change. Events are debounced.
func (s *Store) Watch(ctx context.Context) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating prompt watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", s.dir, err)
	}
	watchCtx, cancel := context.WithCancel(ctx)
	s.watcher = watcher
	s.cancel = cancel

	s.wg.Add(1)
	go s.watchLoop(watchCtx, watcher)
	s.logger.Info("prompt hot reload enabled", "dir", s.dir)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer s.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(s.debounce, func() {
			if err := s.Reload(); err != nil {
				s.logger.Error("failed to reload prompt templates", "error", err)
			}
		})
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if _, known := formats[strings.ToLower(filepath.Ext(event.Name))]; !known {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("prompt watcher error", "error", err)
		}
	}
}

// Close stops the watcher if one is running.
func (s *Store) Close() error {
	s.watchMu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	watcher := s.watcher
	s.watcher = nil
	s.watchMu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	s.wg.Wait()
	return err
}
