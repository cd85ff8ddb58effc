// Package lockfile implements lingosync.lock, a record of the MD5 checksum
// of every translation written to every target file by the last sync.
//
// Comparing a new sync against the lock tells which keys were added,
// changed or removed per file, without diffing the files themselves.
// The lock file is stored in the project root next to lingoconfig.json.
package lockfile

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LockFileName is the default lock file name.
const LockFileName = "lingosync.lock"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the lingosync.lock file structure.
type LockFile struct {
	Version   int                          `yaml:"version"`
	Checksums map[string]map[string]string `yaml:"checksums"` // target -> key -> md5

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{
		Version:   Version,
		Checksums: make(map[string]map[string]string),
		path:      path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Checksums == nil {
		lf.Checksums = make(map[string]map[string]string)
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d", path, lf.Version)
	}

	return lf, nil
}

// Save writes the lock file to disk.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.WriteFile(lf.path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Checksum operations
// ---------------------------------------------------------------------------

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// TargetKey builds the lock key for a target file path as written in
// lingoconfig.json, e.g. "src/locales/en.js".
func TargetKey(filePath string) string {
	return filepath.ToSlash(filePath)
}

// EntryContent builds the content hashed for a translation. The key is
// included so that a renamed key is reported as a change.
func EntryContent(key, value string) string {
	return key + "\x00" + value
}

// isChanged reports whether a translation is new or differs from the lock.
// lf.mu must be held.
func (lf *LockFile) isChanged(target, key, value string) bool {
	oldHash, ok := lf.Checksums[target][key]
	if !ok {
		return true
	}
	return oldHash != Hash(EntryContent(key, value))
}

// FilterChanged returns the keys of entries (key -> value) that are new or
// changed since the lock was written, sorted.
func (lf *LockFile) FilterChanged(target string, entries map[string]string) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	var changed []string
	for key, value := range entries {
		if lf.isChanged(target, key, value) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}

// Stale returns the locked keys of target that are not in currentKeys, sorted.
func (lf *LockFile) Stale(target string, currentKeys []string) []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	valid := make(map[string]bool, len(currentKeys))
	for _, k := range currentKeys {
		valid[k] = true
	}
	var stale []string
	for k := range lf.Checksums[target] {
		if !valid[k] {
			stale = append(stale, k)
		}
	}
	sort.Strings(stale)
	return stale
}

// Replace sets the checksums of target to exactly the given entries,
// dropping keys that are no longer present.
func (lf *LockFile) Replace(target string, entries map[string]string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	sums := make(map[string]string, len(entries))
	for key, value := range entries {
		sums[key] = Hash(EntryContent(key, value))
	}
	lf.Checksums[target] = sums
}

// RemoveTarget removes all checksums for a target.
func (lf *LockFile) RemoveTarget(target string) {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	delete(lf.Checksums, target)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats returns the number of targets and total keys in the lock file.
func (lf *LockFile) Stats() (targets, keys int) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets = len(lf.Checksums)
	for _, m := range lf.Checksums {
		keys += len(m)
	}
	return
}

// Targets returns sorted list of target keys.
func (lf *LockFile) Targets() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	targets := make([]string, 0, len(lf.Checksums))
	for t := range lf.Checksums {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	return targets
}

// Keys returns the number of keys locked for target.
func (lf *LockFile) Keys(target string) int {
	lf.mu.Lock()
	defer lf.mu.Unlock()
	return len(lf.Checksums[target])
}

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	targets, keys := lf.Stats()
	if targets == 0 {
		return "empty"
	}

	var parts []string
	for _, t := range lf.Targets() {
		parts = append(parts, fmt.Sprintf("%s: %d keys", t, lf.Keys(t)))
	}
	return fmt.Sprintf("%d targets, %d keys (%s)", targets, keys, strings.Join(parts, ", "))
}
