package aurforge

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the merged /etc/aurforge.conf and AURFORGE_* environment state.
type Config struct {
	Values map[string]string
}

// LoadConfig reads a KEY=value config file and merges AURFORGE_* env overrides.
// A missing file is not an error; the environment alone is a valid configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Values: make(map[string]string)}

	file, err := os.Open(path)
	if err == nil {
		defer file.Close()
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			val := strings.TrimSpace(parts[1])
			val = strings.Trim(val, `"'`)
			cfg.Values[key] = val
		}
		if err := scanner.Err(); err != nil {
			return cfg, err
		}
	}

	mergeEnvOverrides(cfg)
	return cfg, nil
}

// Merge AURFORGE_* env overrides
func mergeEnvOverrides(cfg *Config) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "AURFORGE_") {
			parts := strings.SplitN(env, "=", 2)
			if len(parts) == 2 {
				cfg.Values[parts[0]] = parts[1]
			}
		}
	}
}

// InitConfig resolves the package-level path globals from the merged config.
func InitConfig(cfg *Config) {
	CacheDir = cfg.Values["AURFORGE_CACHE"]
	if CacheDir == "" {
		CacheDir = "/var/cache/aurforge"
	}
	RecipesDir = CacheDir + "/recipes"
	LogsDir = CacheDir + "/logs"

	OutputDir = cfg.Values["AURFORGE_OUTPUT"]
	if OutputDir == "" {
		OutputDir = "repo/x86_64"
	}

	LedgerFile = cfg.Values["AURFORGE_LEDGER"]
	if LedgerFile == "" {
		LedgerFile = "/var/db/aurforge/versions"
	}

	RepoName = cfg.Values["AURFORGE_REPO"]
	if RepoName == "" {
		RepoName = "aurforge"
	}

	Arch = cfg.Values["AURFORGE_ARCH"]
	if Arch == "" {
		Arch = "x86_64"
	}

	aurBaseURL = cfg.Values["AURFORGE_AUR_URL"]
	if aurBaseURL == "" {
		aurBaseURL = "https://aur.archlinux.org"
	}
	officialBaseURL = cfg.Values["AURFORGE_OFFICIAL_URL"]
	if officialBaseURL == "" {
		officialBaseURL = "https://archlinux.org"
	}

	if cfg.Values["AURFORGE_DEBUG"] == "1" {
		Debug = true
	}
	if cfg.Values["AURFORGE_VERBOSE"] == "1" {
		Verbose = true
	}
}

// RepositoryConfig is the repository block of packages.yaml.
type RepositoryConfig struct {
	Name string `yaml:"name"`
}

// PackageSpec is one entry of the packages.yaml package list.
type PackageSpec struct {
	Name         string   `yaml:"name"`
	AUR          bool     `yaml:"aur"`
	SkipPGPCheck bool     `yaml:"skip_pgp_check"`
	Force        bool     `yaml:"force"`
	BuildFlags   []string `yaml:"build_flags"`
}

// PackagesFile is the parsed packages.yaml.
type PackagesFile struct {
	Repository RepositoryConfig `yaml:"repository"`
	Packages   []PackageSpec    `yaml:"packages"`
}

// LoadPackagesFile parses packages.yaml and validates every entry has a name.
func LoadPackagesFile(path string) (*PackagesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read package list %s: %w", path, err)
	}
	var pf PackagesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("could not parse package list %s: %w", path, err)
	}
	for i, p := range pf.Packages {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("package entry %d in %s has no name", i, path)
		}
	}
	return &pf, nil
}

// BuildConfig enumerates every recognized build option.
// Zero values are the defaults: signature checks enforced, unsigned output,
// packager identity taken from makepkg.conf.
type BuildConfig struct {
	PkgName      string   // package being built
	RecipeDir    string   // fetched recipe bundle (working directory for makepkg)
	OutputDir    string   // shared artifact destination
	Force        bool     // rebuild even when the ledger version matches (default false)
	SkipPGPCheck bool     // pass --skippgpcheck (default false)
	SigningKey   string   // GPG key id for --sign; empty means unsigned (default "")
	Packager     string   // PACKAGER identity; empty leaves makepkg.conf in charge (default "")
	ExtraFlags   []string // extra makepkg flags from packages.yaml (default none)
}

// RetryPolicy controls retries for transient network failures.
// Build-tool failures are deterministic and never retried.
type RetryPolicy struct {
	Count     int           // attempts beyond the first
	BaseDelay time.Duration // doubled per attempt
	Jitter    time.Duration // random extra delay per attempt
}

// DefaultRetryPolicy mirrors the flaky-upstream reality: a few quick retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Count: 2, BaseDelay: 500 * time.Millisecond, Jitter: 250 * time.Millisecond}
}

// RetryPolicyFromConfig reads AURFORGE_RETRIES / AURFORGE_RETRY_DELAY_MS overrides.
func RetryPolicyFromConfig(cfg *Config) RetryPolicy {
	p := DefaultRetryPolicy()
	if v := cfg.Values["AURFORGE_RETRIES"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Count = n
		}
	}
	if v := cfg.Values["AURFORGE_RETRY_DELAY_MS"]; v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			p.BaseDelay = time.Duration(ms) * time.Millisecond
		}
	}
	return p
}

// backoff returns the delay before the given retry attempt (1-based),
// exponential with random jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}
