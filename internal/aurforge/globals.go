package aurforge

import (
	"errors"
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	CacheDir   string
	RecipesDir string
	LogsDir    string
	OutputDir  string
	LedgerFile string
	RepoName   string
	Arch       string

	aurBaseURL      string
	officialBaseURL string

	Debug   bool
	Verbose bool

	ConfigFile = "/etc/aurforge.conf"

	version   = "dev"     // overridden at build time
	buildDate = "unknown" // overridden at build time
	hostArch  = runtime.GOARCH
)

// Error taxonomy. Per-package errors are downgraded to recorded outcomes at
// the orchestrator boundary; only ErrDatabaseRegen is fatal for a run.
var (
	ErrNotFound      = errors.New("package not found upstream")
	ErrNetwork       = errors.New("network error")
	ErrClone         = errors.New("recipe clone failed")
	ErrRecipeInvalid = errors.New("recipe bundle invalid")
	ErrBuildFailure  = errors.New("build failed")
	ErrNoArtifacts   = errors.New("build produced no artifacts")
	ErrPublish       = errors.New("artifact publish failed")
	ErrDatabaseRegen = errors.New("repository database regeneration failed")
)

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)
