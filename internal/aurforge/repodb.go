package aurforge

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/pgzip"
	"golang.org/x/sys/unix"
)

// RepoDB regenerates the repository database so it exactly reflects the
// artifact files present in the output directory, no more and no less,
// regardless of how many packages succeeded or failed upstream.
type RepoDB struct {
	Dir  string // output directory holding artifacts and database files
	Name string // repository name (db files are <Name>.db.tar.gz etc.)
	run  commandFunc
}

// NewRepoDB wires a manager to the real repo-add tool.
func NewRepoDB(dir, name string) *RepoDB {
	return &RepoDB{Dir: dir, Name: name, run: runCommand}
}

// Regenerate rebuilds the database from scratch. It returns the number of
// artifacts indexed; zero artifacts still produce a valid empty database
// (consumers expect the file to exist). The first repo-add failure aborts
// the whole regeneration with ErrDatabaseRegen: a half-built index is
// strictly worse than the previous one, so the caller must not publish the
// directory in that case.
func (r *RepoDB) Regenerate(ctx context.Context) (int, error) {
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}

	// Single-writer barrier: no build may still be writing into the output
	// directory, and no second regeneration may overlap this one.
	lockPath := filepath.Join(r.Dir, "."+r.Name+".regen.lock")
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}
	defer lf.Close()
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}
	defer unix.Flock(int(lf.Fd()), unix.LOCK_UN)

	if err := r.decodeArtifactNames(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}

	artifacts, err := r.listArtifacts()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}

	if err := r.removeStaleDatabases(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}

	dbPath := filepath.Join(r.Dir, r.Name+".db.tar.gz")
	if len(artifacts) == 0 {
		// Valid empty database rather than no database at all.
		if err := r.run(ctx, r.Dir, nil, "repo-add", dbPath); err != nil {
			return 0, fmt.Errorf("%w: creating empty database: %v", ErrDatabaseRegen, err)
		}
	} else {
		for _, artifact := range artifacts {
			if err := r.run(ctx, r.Dir, nil, "repo-add", dbPath, filepath.Join(r.Dir, artifact)); err != nil {
				return 0, fmt.Errorf("%w: indexing %s: %v", ErrDatabaseRegen, artifact, err)
			}
		}
	}

	if err := r.ensureLatestLinks(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseRegen, err)
	}

	if err := r.verifyDatabase(artifacts); err != nil {
		return 0, err
	}
	return len(artifacts), nil
}

// decodeArtifactNames restores canonical filenames for any transport-safe
// artifact or signature in the directory, so published metadata matches the
// canonical package naming scheme. Only basenames are touched.
func (r *RepoDB) decodeArtifactNames() error {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !IsEncodedFilename(e.Name()) {
			continue
		}
		canonical := DecodeFilename(e.Name())
		debugf("Decoding %s -> %s\n", e.Name(), canonical)
		if err := os.Rename(filepath.Join(r.Dir, e.Name()), filepath.Join(r.Dir, canonical)); err != nil {
			return fmt.Errorf("failed to restore canonical name for %s: %w", e.Name(), err)
		}
	}
	return nil
}

// listArtifacts enumerates the binary package files in deterministic
// (lexical) order, excluding signatures and database files.
func (r *RepoDB) listArtifacts() ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return nil, err
	}
	var artifacts []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".sig") {
			continue
		}
		for _, suffix := range artifactSuffixes {
			if strings.HasSuffix(e.Name(), suffix) {
				artifacts = append(artifacts, e.Name())
				break
			}
		}
	}
	sort.Strings(artifacts)
	return artifacts, nil
}

// removeStaleDatabases deletes every pre-existing database and files-index
// file so stale entries cannot survive the rebuild.
func (r *RepoDB) removeStaleDatabases() error {
	for _, pattern := range []string{r.Name + ".db*", r.Name + ".files*"} {
		matches, err := filepath.Glob(filepath.Join(r.Dir, pattern))
		if err != nil {
			return err
		}
		for _, m := range matches {
			debugf("Removing stale database file: %s\n", m)
			if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
	}
	return nil
}

// ensureLatestLinks guarantees the conventional <name>.db and <name>.files
// aliases point at the freshly generated archives. repo-add creates them in
// most versions; recreate atomically either way.
func (r *RepoDB) ensureLatestLinks() error {
	links := map[string]string{
		r.Name + ".db":    r.Name + ".db.tar.gz",
		r.Name + ".files": r.Name + ".files.tar.gz",
	}
	for alias, target := range links {
		if _, err := os.Stat(filepath.Join(r.Dir, target)); err != nil {
			// repo-add did not produce this archive (e.g. files index on an
			// empty repo with some tool versions); nothing to alias.
			continue
		}
		aliasPath := filepath.Join(r.Dir, alias)
		tmpPath := fmt.Sprintf("%s.tmp.%d", aliasPath, time.Now().UnixNano())
		if err := os.Symlink(target, tmpPath); err != nil {
			return fmt.Errorf("failed to create alias %s: %w", alias, err)
		}
		if err := os.Rename(tmpPath, aliasPath); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to replace alias %s: %w", alias, err)
		}
	}
	return nil
}

// verifyDatabase cross-checks the regenerated database against the artifact
// set: every artifact appears exactly once and no entry references a file
// absent from the directory.
func (r *RepoDB) verifyDatabase(artifacts []string) error {
	indexed, err := readDatabaseFilenames(filepath.Join(r.Dir, r.Name+".db.tar.gz"))
	if err != nil {
		return fmt.Errorf("%w: reading back database: %v", ErrDatabaseRegen, err)
	}

	want := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		want[a] = true
	}
	for _, f := range indexed {
		if !want[f] {
			return fmt.Errorf("%w: database references %s which is not in %s", ErrDatabaseRegen, f, r.Dir)
		}
		delete(want, f)
	}
	for a := range want {
		return fmt.Errorf("%w: artifact %s missing from database", ErrDatabaseRegen, a)
	}
	return nil
}

// readDatabaseFilenames extracts every %FILENAME% value from the gzipped
// database archive's per-package desc members.
func readDatabaseFilenames(dbPath string) ([]string, error) {
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gzr, err := pgzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	var filenames []string
	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if header.Typeflag == tar.TypeDir || filepath.Base(header.Name) != "desc" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		if name := descField(string(data), "%FILENAME%"); name != "" {
			filenames = append(filenames, name)
		}
	}
	return filenames, nil
}

// descField pulls the first value line following a %FIELD% marker.
func descField(desc, field string) string {
	lines := strings.Split(desc, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == field && i+1 < len(lines) {
			return strings.TrimSpace(lines[i+1])
		}
	}
	return ""
}
