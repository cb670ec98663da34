package aurforge

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Ledger is the persisted name -> last-built-version mapping, stored as
// "name version" lines. It is read before every decision and rewritten
// whole-file after each successful build-and-publish, never on failure, so a
// failed build is retried on the next run instead of being marked current.
type Ledger struct {
	Path string

	mu sync.Mutex
}

// OpenLedger returns a handle; the backing file may not exist yet.
func OpenLedger(path string) *Ledger {
	return &Ledger{Path: path}
}

// Load reads the full mapping. A missing file is an empty mapping, not an error.
func (l *Ledger) Load() (map[string]string, error) {
	entries := make(map[string]string)

	f, err := os.Open(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read ledger %s: %w", l.Path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			debugf("Skipping malformed ledger line: %q\n", line)
			continue
		}
		entries[fields[0]] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger %s: %w", l.Path, err)
	}
	return entries, nil
}

// Get returns the last-built version for a package. The second return is
// false when the package has never been built.
func (l *Ledger) Get(name string) (string, bool, error) {
	entries, err := l.Load()
	if err != nil {
		return "", false, err
	}
	v, ok := entries[name]
	return v, ok, nil
}

// Set records a successfully published version, overwriting any prior entry.
// The rewrite is whole-file and atomic (temp + rename) under an exclusive
// flock, so concurrent build completions within a run serialize cleanly.
func (l *Ledger) Set(name, version string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	lockPath := l.Path + ".lock"
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open ledger lock: %w", err)
	}
	defer lf.Close()
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock ledger: %w", err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	entries, err := l.Load()
	if err != nil {
		return err
	}
	entries[name] = version

	names := make([]string, 0, len(entries))
	for n := range entries {
		names = append(names, n)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, n := range names {
		fmt.Fprintf(&sb, "%s %s\n", n, entries[n])
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", l.Path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace ledger: %w", err)
	}
	return nil
}
