package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/aquaops/fieldserve/pkg/observability"
)

// GateRules are the subscription gate's allow-lists, kept in a YAML
// file so support can adjust exemptions without a deploy
type GateRules struct {
	AllowedPathPrefixes []string `yaml:"allowed_path_prefixes"`
	ExemptRoles         []string `yaml:"exempt_roles"`
	ExemptEmails        []string `yaml:"exempt_emails"`
}

// DefaultGateRules returns the rules used when no file is configured
func DefaultGateRules() GateRules {
	return GateRules{
		AllowedPathPrefixes: []string{
			"/pricing",
			"/login",
			"/logout",
			"/auth/",
			"/api/oauth/",
			"/api/invitations/verify",
			"/api/invitations/accept",
			"/static/",
			"/health",
			"/metrics",
		},
		ExemptRoles: []string{"system_admin"},
	}
}

// LoadGateRules reads the rules file. Missing sections fall back to the
// defaults so a file listing only exempt_emails still allow-lists the
// billing paths.
func LoadGateRules(path string) (GateRules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GateRules{}, fmt.Errorf("failed to read gate rules: %w", err)
	}

	rules := GateRules{}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return GateRules{}, fmt.Errorf("failed to parse gate rules: %w", err)
	}

	defaults := DefaultGateRules()
	if len(rules.AllowedPathPrefixes) == 0 {
		rules.AllowedPathPrefixes = defaults.AllowedPathPrefixes
	}
	if len(rules.ExemptRoles) == 0 {
		rules.ExemptRoles = defaults.ExemptRoles
	}

	return rules, nil
}

// GateRulesWatcher serves the current rules and reloads them when the
// file changes
type GateRulesWatcher struct {
	path    string
	logger  *observability.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu       sync.RWMutex
	rules    GateRules
	onChange func(GateRules)
}

// NewGateRulesWatcher loads the rules and begins watching the file. An
// empty path means defaults only, with no watching.
func NewGateRulesWatcher(path string, logger *observability.Logger) (*GateRulesWatcher, error) {
	w := &GateRulesWatcher{
		path:   path,
		logger: logger,
		rules:  DefaultGateRules(),
		done:   make(chan struct{}),
	}

	if path == "" {
		return w, nil
	}

	rules, err := LoadGateRules(path)
	if err != nil {
		return nil, err
	}
	w.rules = rules

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save
	// and a watch on the old inode goes silent.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch gate rules: %w", err)
	}
	w.watcher = watcher

	go w.watch()
	return w, nil
}

// OnChange registers a callback invoked after every successful reload.
// Must be called before the first change arrives, typically right after
// construction.
func (w *GateRulesWatcher) OnChange(fn func(GateRules)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Rules returns the current rules
func (w *GateRulesWatcher) Rules() GateRules {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.rules
}

// Close stops watching
func (w *GateRulesWatcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *GateRulesWatcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("gate rules watcher error")
		}
	}
}

// reload re-reads the file, keeping the previous rules if it is
// unreadable or invalid
func (w *GateRulesWatcher) reload() {
	rules, err := LoadGateRules(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).
			Warn("failed to reload gate rules, keeping previous rules")
		return
	}

	w.mu.Lock()
	w.rules = rules
	fn := w.onChange
	w.mu.Unlock()

	if fn != nil {
		fn(rules)
	}
	w.logger.WithField("path", w.path).Info("gate rules reloaded")
}
