package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/smartcash-reconciler/internal/domain/alias"
)

// AliasFile is the on-disk alias format. Both shapes may be used together:
//
//	aliases:
//	  "tsla motors gmbh": "tesla inc"
//	entities:
//	  "tesla inc": ["tesla germany gmbh", "tesla motors"]
type AliasFile struct {
	Aliases  map[string]string   `yaml:"aliases"`
	Entities map[string][]string `yaml:"entities"`
}

// Table flattens the file into variant -> canonical
func (f AliasFile) Table() map[string]string {
	table := make(map[string]string, len(f.Aliases))
	for canonical, variants := range f.Entities {
		for _, v := range variants {
			table[v] = canonical
		}
	}
	for variant, canonical := range f.Aliases {
		table[variant] = canonical
	}
	return table
}

// LoadAliasFile reads and parses an alias file
func LoadAliasFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alias file %s: %w", path, err)
	}
	var f AliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse alias file %s: %w", path, err)
	}
	return f.Table(), nil
}

// AliasLoader reads an alias file and watches it for changes.
// Each successful reload builds a fresh immutable Resolver.
type AliasLoader struct {
	path     string
	base     map[string]string
	logger   *slog.Logger
	mu       sync.RWMutex
	current  *alias.Resolver
	onChange []func(*alias.Resolver)
}

// NewAliasLoader performs the initial load. base entries (typically the
// inline config table) are overridden by entries from the file.
func NewAliasLoader(path string, base map[string]string, logger *slog.Logger) (*AliasLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &AliasLoader{path: path, base: base, logger: logger}
	r, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = r
	return l, nil
}

// Resolver returns the current (latest) resolver
func (l *AliasLoader) Resolver() *alias.Resolver {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the alias table reloads
func (l *AliasLoader) OnChange(fn func(*alias.Resolver)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the file on changes.
// The parent directory is watched so editors that replace the file by
// rename are picked up. Call the returned stop function to clean up.
func (l *AliasLoader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("alias watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("alias watcher add %s: %w", l.path, err)
	}

	target := filepath.Clean(l.path)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.logger.Warn("Alias reload failed, keeping previous table", "path", l.path, "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.logger.Warn("Alias watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the alias file
func (l *AliasLoader) Reload() (*alias.Resolver, error) {
	r, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = r
	callbacks := make([]func(*alias.Resolver), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	l.logger.Info("Alias table loaded", "path", l.path, "entries", r.Len())
	for _, fn := range callbacks {
		fn(r)
	}
	return r, nil
}

func (l *AliasLoader) load() (*alias.Resolver, error) {
	fromFile, err := LoadAliasFile(l.path)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]string, len(l.base)+len(fromFile))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fromFile {
		merged[k] = v
	}
	return alias.NewResolver(merged), nil
}
