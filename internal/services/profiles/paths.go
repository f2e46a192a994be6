package profiles

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ExpandHome expands a leading ~ to the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// dirLocks serializes access to individual config directories.
type dirLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newDirLocks() *dirLocks {
	return &dirLocks{locks: make(map[string]*sync.Mutex)}
}

// lock acquires the lock of dir and returns its release function.
func (l *dirLocks) lock(dir string) func() {
	key := filepath.Clean(dir)

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// LockConfigDir blocks until no other reader or writer holds dir and returns the release
// function. Callers that write into a profile's config directory hold it for the duration.
func (s *Store) LockConfigDir(dir string) func() {
	return s.dirs.lock(ExpandHome(dir))
}
