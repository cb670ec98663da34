package aurforge

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aurforge.conf")
	content := "# comment\nAURFORGE_REPO = myrepo\nAURFORGE_JOBS=\"4\"\nmalformed line\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	t.Setenv("AURFORGE_REPO", "overridden")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Values["AURFORGE_REPO"] != "overridden" {
		t.Fatalf("env must override file: %q", cfg.Values["AURFORGE_REPO"])
	}
	if cfg.Values["AURFORGE_JOBS"] != "4" {
		t.Fatalf("quoted value not stripped: %q", cfg.Values["AURFORGE_JOBS"])
	}
}

func TestLoadConfigMissingFileIsEnvironmentOnly(t *testing.T) {
	t.Setenv("AURFORGE_ARCH", "aarch64")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.conf"))
	if err != nil {
		t.Fatalf("missing config file must not error: %v", err)
	}
	if cfg.Values["AURFORGE_ARCH"] != "aarch64" {
		t.Fatalf("env not merged: %v", cfg.Values)
	}
}

func TestLoadPackagesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.yaml")
	content := `repository:
  name: myrepo
packages:
  - name: yay
    aur: true
  - name: spotify
    aur: true
    skip_pgp_check: true
    force: true
    build_flags: ["--nocheck"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	pf, err := LoadPackagesFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pf.Repository.Name != "myrepo" {
		t.Fatalf("repository name: %q", pf.Repository.Name)
	}
	if len(pf.Packages) != 2 {
		t.Fatalf("packages: %+v", pf.Packages)
	}
	spotify := pf.Packages[1]
	if !spotify.SkipPGPCheck || !spotify.Force || len(spotify.BuildFlags) != 1 {
		t.Fatalf("flags not parsed: %+v", spotify)
	}
}

func TestLoadPackagesFileRejectsNamelessEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packages.yaml")
	os.WriteFile(path, []byte("packages:\n  - aur: true\n"), 0o644)
	if _, err := LoadPackagesFile(path); err == nil {
		t.Fatalf("expected error for entry without a name")
	}
}

func TestRetryPolicyBackoffGrows(t *testing.T) {
	p := RetryPolicy{Count: 3, BaseDelay: 100 * time.Millisecond}
	first := p.backoff(1)
	second := p.backoff(2)
	if first != 100*time.Millisecond {
		t.Fatalf("first backoff %v", first)
	}
	if second != 200*time.Millisecond {
		t.Fatalf("second backoff %v, want doubled", second)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	cfg := &Config{Values: map[string]string{
		"AURFORGE_RETRIES":        "5",
		"AURFORGE_RETRY_DELAY_MS": "50",
	}}
	p := RetryPolicyFromConfig(cfg)
	if p.Count != 5 || p.BaseDelay != 50*time.Millisecond {
		t.Fatalf("unexpected policy: %+v", p)
	}
}
