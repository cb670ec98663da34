package aurforge

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListPublishedFilesOrderAndFiltering(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"foo-1.0-1-x86_64.pkg.tar.zst",
		"foo-1.0-1-x86_64.pkg.tar.zst.sig",
		"bar-2.0-1-x86_64.pkg.tar.zst",
		"packages.json",
		"myrepo.db.tar.gz",
		"myrepo.files.tar.gz",
		// Noise that must never reach the mirror.
		".myrepo.regen.lock",
		"foo-1.0-1-x86_64.pkg.tar.zst.tmp.123",
		"versions.lock",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	os.Symlink("myrepo.db.tar.gz", filepath.Join(dir, "myrepo.db"))
	os.Symlink("myrepo.files.tar.gz", filepath.Join(dir, "myrepo.files"))

	got, err := listPublishedFiles(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{
		// artifacts and indexes first, then database archives, then aliases
		"bar-2.0-1-x86_64.pkg.tar.zst",
		"foo-1.0-1-x86_64.pkg.tar.zst",
		"foo-1.0-1-x86_64.pkg.tar.zst.sig",
		"packages.json",
		"myrepo.db.tar.gz",
		"myrepo.files.tar.gz",
		"myrepo.db",
		"myrepo.files",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("published files:\ngot  %v\nwant %v", got, want)
	}
}

func TestListPublishedFilesMissingDirectory(t *testing.T) {
	got, err := listPublishedFiles(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("missing directory should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected nothing, got %v", got)
	}
}
