package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/deskforge/deskforge/pkg/observability"
)

// SuperRoleSet holds the reserved roles that bypass permission grants.
// The set is safe for concurrent reads while a background watcher reloads
// it from the configured file.
type SuperRoleSet struct {
	mu    sync.RWMutex
	roles map[string]bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSuperRoleSet creates a set seeded with the given roles.
func NewSuperRoleSet(roles []string) *SuperRoleSet {
	s := &SuperRoleSet{
		roles: make(map[string]bool, len(roles)),
		done:  make(chan struct{}),
	}
	s.replace(roles)
	return s
}

// Contains reports whether role is a reserved super-role.
func (s *SuperRoleSet) Contains(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roles[role]
}

// Roles returns a copy of the current role list.
func (s *SuperRoleSet) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.roles))
	for role := range s.roles {
		out = append(out, role)
	}
	return out
}

func (s *SuperRoleSet) replace(roles []string) {
	next := make(map[string]bool, len(roles))
	for _, role := range roles {
		if role = strings.TrimSpace(role); role != "" {
			next[role] = true
		}
	}
	s.mu.Lock()
	s.roles = next
	s.mu.Unlock()
}

// LoadFromFile replaces the set with the file's contents: one role per
// line, blank lines and #-comments ignored.
func (s *SuperRoleSet) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read super roles file: %w", err)
	}

	var roles []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		roles = append(roles, line)
	}

	if len(roles) == 0 {
		return fmt.Errorf("super roles file %s contains no roles", path)
	}

	s.replace(roles)
	return nil
}

// Watch loads the file and reloads it whenever it changes. A reload that
// fails keeps the previous set; losing the super-roles mid-flight would
// lock administrators out.
func (s *SuperRoleSet) Watch(path string, logger *observability.Logger) error {
	if err := s.LoadFromFile(path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors replace files, which drops a watch on
	// the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := s.LoadFromFile(path); err != nil {
					logger.WithError(err).Warn("super roles reload failed, keeping previous set")
					continue
				}
				logger.WithField("roles", s.Roles()).Info("super roles reloaded")

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("super roles watcher error")

			case <-s.done:
				return
			}
		}
	}()

	return nil
}

// Close stops the watcher if one is running.
func (s *SuperRoleSet) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
