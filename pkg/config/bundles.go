package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/codegate-dev/codegate/pkg/canonical"
	"github.com/codegate-dev/codegate/pkg/rules"
)

// Bundle roles. A baseline bundle is the locked organization policy; an
// override bundle carries project-level adjustments merged under the
// baseline's lock rules.
const (
	RoleBaseline = "baseline"
	RoleOverride = "override"
)

// Bundle is one JSON policy file.
type Bundle struct {
	Name    string    `json:"name"`
	Version string    `json:"version"`
	Role    string    `json:"role"`
	Rules   rules.Set `json:"rules"`
}

// BundleLoader loads policy bundles from a directory and serves merged
// rule sets by bundle name. Reloads are atomic per file.
type BundleLoader struct {
	mu        sync.RWMutex
	dir       string
	baselines map[string]Bundle
	overrides map[string]Bundle
	onReload  func(Bundle)
	logger    *slog.Logger
	watcher   *fsnotify.Watcher
}

// NewBundleLoader creates a loader for the given directory.
func NewBundleLoader(dir string) *BundleLoader {
	return &BundleLoader{
		dir:       dir,
		baselines: make(map[string]Bundle),
		overrides: make(map[string]Bundle),
		logger:    slog.Default(),
	}
}

func (l *BundleLoader) WithLogger(logger *slog.Logger) *BundleLoader {
	l.logger = logger
	return l
}

// OnReload registers a callback invoked after a bundle loads or reloads.
func (l *BundleLoader) OnReload(fn func(Bundle)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReload = fn
}

// LoadAll loads every .json bundle in the directory. A missing directory
// is an empty policy, not an error.
func (l *BundleLoader) LoadAll() error {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: read bundle dir %s: %w", l.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := l.LoadFile(filepath.Join(l.dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// LoadFile loads one bundle file, validates its rules and installs it.
func (l *BundleLoader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read bundle %s: %w", path, err)
	}
	var bundle Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return fmt.Errorf("config: parse bundle %s: %w", path, err)
	}
	if bundle.Name == "" {
		base := filepath.Base(path)
		bundle.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if bundle.Role == "" {
		bundle.Role = RoleBaseline
	}
	if err := bundle.Rules.Validate(); err != nil {
		return fmt.Errorf("config: bundle %s: %w", bundle.Name, err)
	}

	l.mu.Lock()
	switch bundle.Role {
	case RoleOverride:
		l.overrides[bundle.Name] = bundle
	default:
		l.baselines[bundle.Name] = bundle
	}
	callback := l.onReload
	l.mu.Unlock()

	if callback != nil {
		callback(bundle)
	}
	return nil
}

// Active returns the merged rule set for a bundle name: the baseline
// merged with the project override of the same name, plus the canonical
// hash of the merged set.
func (l *BundleLoader) Active(name string) (rules.Set, string, error) {
	l.mu.RLock()
	baseline, hasBaseline := l.baselines[name]
	override, hasOverride := l.overrides[name]
	l.mu.RUnlock()

	if !hasBaseline && !hasOverride {
		return rules.Set{}, "", fmt.Errorf("config: bundle %q not loaded", name)
	}

	merged := baseline.Rules
	if hasOverride {
		merged = rules.Merge(baseline.Rules, override.Rules)
	}
	hash, err := canonical.Hash(merged)
	if err != nil {
		return rules.Set{}, "", fmt.Errorf("config: hash bundle %q: %w", name, err)
	}
	return merged, hash, nil
}

// Names lists the loaded bundle names.
func (l *BundleLoader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	seen := map[string]struct{}{}
	var names []string
	for name := range l.baselines {
		seen[name] = struct{}{}
		names = append(names, name)
	}
	for name := range l.overrides {
		if _, dup := seen[name]; !dup {
			names = append(names, name)
		}
	}
	return names
}

// Watch reloads bundle files as they change on disk until Close is
// called. Reload failures keep the previous bundle and log a warning.
func (l *BundleLoader) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: watch bundles: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch %s: %w", l.dir, err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Ext(event.Name) != ".json" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := l.LoadFile(event.Name); err != nil {
					l.logger.Warn("bundle reload failed", "path", event.Name, "error", err)
				} else {
					l.logger.Info("bundle reloaded", "path", event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Warn("bundle watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher when one is running.
func (l *BundleLoader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher != nil {
		err := l.watcher.Close()
		l.watcher = nil
		return err
	}
	return nil
}
