package aurforge

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// fakeRepoAdd mimics repo-add closely enough to exercise the manager: it
// accumulates package entries and rewrites the database (and files index)
// archives with a desc member per package.
type fakeRepoAdd struct {
	invocations [][]string
	packages    []string
	failOn      string // artifact basename that triggers a tool failure
}

func (f *fakeRepoAdd) run(ctx context.Context, dir string, logger io.Writer, name string, args ...string) error {
	if name != "repo-add" {
		return fmt.Errorf("unexpected tool %s", name)
	}
	f.invocations = append(f.invocations, args)

	dbPath := args[0]
	if len(args) > 1 {
		pkg := filepath.Base(args[1])
		if pkg == f.failOn {
			return errors.New("exit status 1")
		}
		f.packages = append(f.packages, pkg)
	}
	if err := f.writeArchive(dbPath); err != nil {
		return err
	}
	filesPath := strings.Replace(dbPath, ".db.tar.gz", ".files.tar.gz", 1)
	return f.writeArchive(filesPath)
}

func (f *fakeRepoAdd) writeArchive(path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	gzw := gzip.NewWriter(out)
	tw := tar.NewWriter(gzw)
	for _, pkg := range f.packages {
		stem := pkg
		for _, suffix := range artifactSuffixes {
			stem = strings.TrimSuffix(stem, suffix)
		}
		desc := fmt.Sprintf("%%FILENAME%%\n%s\n\n%%NAME%%\n%s\n", pkg, stem)
		hdr := &tar.Header{
			Name: stem + "/desc",
			Mode: 0o644,
			Size: int64(len(desc)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := tw.Write([]byte(desc)); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gzw.Close()
}

func newTestRepoDB(dir string, fake *fakeRepoAdd) *RepoDB {
	r := NewRepoDB(dir, "testrepo")
	r.run = fake.run
	return r
}

func TestRegenerateIndexesAllArtifactsLexically(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"zlib-ng-2.1-1-x86_64.pkg.tar.zst",
		"acpi-1.7-3-x86_64.pkg.tar.zst",
		"mesa-24.0-1-x86_64.pkg.tar.zst",
		"mesa-24.0-1-x86_64.pkg.tar.zst.sig",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("pkg"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Stale database files from a previous run must not survive.
	if err := os.WriteFile(filepath.Join(dir, "testrepo.db.tar.gz"), []byte("old"), 0o644); err != nil {
		t.Fatalf("seed stale db: %v", err)
	}

	fake := &fakeRepoAdd{}
	count, err := newTestRepoDB(dir, fake).Regenerate(context.Background())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 artifacts indexed, got %d", count)
	}

	var fed []string
	for _, inv := range fake.invocations {
		if len(inv) > 1 {
			fed = append(fed, filepath.Base(inv[1]))
		}
	}
	want := []string{
		"acpi-1.7-3-x86_64.pkg.tar.zst",
		"mesa-24.0-1-x86_64.pkg.tar.zst",
		"zlib-ng-2.1-1-x86_64.pkg.tar.zst",
	}
	if !reflect.DeepEqual(fed, want) {
		t.Fatalf("artifacts fed out of order:\ngot  %v\nwant %v", fed, want)
	}

	for alias, target := range map[string]string{
		"testrepo.db":    "testrepo.db.tar.gz",
		"testrepo.files": "testrepo.files.tar.gz",
	} {
		link, err := os.Readlink(filepath.Join(dir, alias))
		if err != nil {
			t.Fatalf("alias %s: %v", alias, err)
		}
		if link != target {
			t.Fatalf("alias %s points at %s, want %s", alias, link, target)
		}
	}
}

func TestRegenerateDecodesTransportNamesFirst(t *testing.T) {
	dir := t.TempDir()
	encoded := "foo-2_EPOCH_1.0-1-x86_64.pkg.tar.zst"
	if err := os.WriteFile(filepath.Join(dir, encoded), []byte("pkg"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	fake := &fakeRepoAdd{}
	if _, err := newTestRepoDB(dir, fake).Regenerate(context.Background()); err != nil {
		t.Fatalf("regenerate: %v", err)
	}

	canonical := "foo-2:1.0-1-x86_64.pkg.tar.zst"
	if _, err := os.Stat(filepath.Join(dir, canonical)); err != nil {
		t.Fatalf("canonical artifact missing after decode: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, encoded)); !os.IsNotExist(err) {
		t.Fatalf("encoded artifact still present")
	}
	if got := filepath.Base(fake.invocations[0][1]); got != canonical {
		t.Fatalf("repo-add fed %q, want canonical %q", got, canonical)
	}
}

func TestRegenerateEmptyDirectoryProducesValidEmptyDatabase(t *testing.T) {
	dir := t.TempDir()
	fake := &fakeRepoAdd{}

	count, err := newTestRepoDB(dir, fake).Regenerate(context.Background())
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero artifacts, got %d", count)
	}
	if len(fake.invocations) != 1 || len(fake.invocations[0]) != 1 {
		t.Fatalf("expected one bare repo-add invocation, got %v", fake.invocations)
	}

	filenames, err := readDatabaseFilenames(filepath.Join(dir, "testrepo.db.tar.gz"))
	if err != nil {
		t.Fatalf("empty database unreadable: %v", err)
	}
	if len(filenames) != 0 {
		t.Fatalf("empty database lists %v", filenames)
	}
}

func TestRegenerateAbortsOnFirstToolFailure(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"aaa-1-1-x86_64.pkg.tar.zst",
		"bbb-1-1-x86_64.pkg.tar.zst",
		"ccc-1-1-x86_64.pkg.tar.zst",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("pkg"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	fake := &fakeRepoAdd{failOn: "bbb-1-1-x86_64.pkg.tar.zst"}
	_, err := newTestRepoDB(dir, fake).Regenerate(context.Background())
	if !errors.Is(err, ErrDatabaseRegen) {
		t.Fatalf("got %v, want ErrDatabaseRegen", err)
	}
	// ccc must never have been fed: first failure aborts the regeneration.
	for _, inv := range fake.invocations {
		if len(inv) > 1 && strings.HasPrefix(filepath.Base(inv[1]), "ccc") {
			t.Fatalf("regeneration continued past the failure: %v", fake.invocations)
		}
	}
}

func TestRegenerateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "foo-1.0-1-x86_64.pkg.tar.zst"), []byte("pkg"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	run := func() []string {
		fake := &fakeRepoAdd{}
		if _, err := newTestRepoDB(dir, fake).Regenerate(context.Background()); err != nil {
			t.Fatalf("regenerate: %v", err)
		}
		names, err := readDatabaseFilenames(filepath.Join(dir, "testrepo.db.tar.gz"))
		if err != nil {
			t.Fatalf("read db: %v", err)
		}
		return names
	}

	first := run()
	second := run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("regeneration not idempotent: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(first, []string{"foo-1.0-1-x86_64.pkg.tar.zst"}) {
		t.Fatalf("unexpected database contents: %v", first)
	}
}

func TestVerifyDatabaseCatchesGhostEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "real-1-1-x86_64.pkg.tar.zst"), []byte("pkg"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// A "repo-add" that sneaks an entry for a file not present in the dir.
	fake := &fakeRepoAdd{packages: []string{"ghost-9-9-x86_64.pkg.tar.zst"}}
	_, err := newTestRepoDB(dir, fake).Regenerate(context.Background())
	if !errors.Is(err, ErrDatabaseRegen) {
		t.Fatalf("got %v, want ErrDatabaseRegen for index referencing a missing file", err)
	}
}
