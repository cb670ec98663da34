package aurforge

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/gookit/color"
)

// Per-package sync exit codes.
const (
	syncExitOK            = 0 // built, or nothing to do
	syncExitNotFound      = 1 // not found upstream
	syncExitNetwork       = 2 // network error
	syncExitFetchFailed   = 3 // recipe fetch failed
	syncExitSkipOfficial  = 4 // found in official repo
	syncExitSkipUnchanged = 5 // version unchanged
	syncExitBuildFailed   = 6 // build or publish failed
)

// Database regeneration exit codes.
const (
	regenExitOK      = 0
	regenExitFailed  = 1
	regenExitNoFiles = 2 // no artifacts present; empty database was produced
)

// printHelp prints the commands table
func printHelp() {
	colSuccess.Println("Usage: aurforge <command> [arguments]")
	colSuccess.Println("Run 'aurforge <command> -h' for command options")
	fmt.Println()
	color.Info.Println("Available Commands:")

	type cmdInfo struct {
		Cmd  string
		Args string
		Desc string
	}
	cmds := []cmdInfo{
		{"version, --version", "", "Version information"},
		{"sync", "[options] <pkg>", "Decide, fetch, build and publish one package"},
		{"run", "[options]", "Full run over packages.yaml with database regeneration"},
		{"regen", "[options]", "Regenerate the repository database from the output directory"},
		{"index", "[options]", "Regenerate packages.json from the output directory"},
		{"upload", "[--cleanup]", "Publish the output directory to the S3/R2 mirror"},
		{"log", "", "TUI build log viewer"},
	}

	maxLen := 0
	for _, c := range cmds {
		length := len(c.Cmd) + len(c.Args)
		if c.Args != "" {
			length++
		}
		if length > maxLen {
			maxLen = length
		}
	}
	columnWidth := maxLen + 4

	for _, c := range cmds {
		var usageString string
		if c.Args != "" {
			usageString = fmt.Sprintf("%s %s", c.Cmd, c.Args)
		} else {
			usageString = c.Cmd
		}

		fmt.Print("  ")
		color.Bold.Print(c.Cmd)
		if c.Args != "" {
			fmt.Print(" ")
			color.Cyan.Print(c.Args)
		}
		padding := columnWidth - len(usageString)
		for i := 0; i < padding; i++ {
			fmt.Print(" ")
		}
		fmt.Println(c.Desc)
	}
}

// Dispatch routes a CLI invocation and returns the process exit code.
func Dispatch(ctx context.Context, cfg *Config, args []string) int {
	if len(args) == 0 {
		printHelp()
		return 0
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("aurforge %s (%s, built %s)\n", version, hostArch, buildDate)
		return 0
	case "help", "--help", "-h":
		printHelp()
		return 0
	case "sync":
		return handleSyncCommand(ctx, args[1:], cfg)
	case "run":
		return handleRunCommand(ctx, args[1:], cfg)
	case "regen":
		return handleRegenCommand(ctx, args[1:])
	case "index":
		return handleIndexCommand(args[1:])
	case "upload":
		if err := handleUploadCommand(ctx, args[1:], cfg); err != nil {
			cPrintf(colError, "upload failed: %v\n", err)
			return 1
		}
		return 0
	case "log":
		return runLogViewer()
	default:
		fmt.Println("Unknown command:", args[0])
		printHelp()
		return 1
	}
}

// handleSyncCommand decides and, when warranted, builds and publishes a
// single package. The exit code encodes the verdict for CI consumption.
func handleSyncCommand(ctx context.Context, args []string, cfg *Config) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	force := fs.Bool("force", false, "rebuild even when the ledger version matches")
	skipPGP := fs.Bool("skip-pgp", false, "pass --skippgpcheck to makepkg")
	key := fs.String("key", cfg.Values["AURFORGE_SIGNING_KEY"], "GPG key id to sign artifacts with")
	packager := fs.String("packager", cfg.Values["AURFORGE_PACKAGER"], "PACKAGER identity for makepkg")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Println("Usage: aurforge sync [options] <pkg>")
		return 1
	}
	name := fs.Arg(0)

	client := NewAURClient(cfg)
	ledger := OpenLedger(LedgerFile)

	decision := Decide(ctx, client, ledger, name, *force)
	switch decision.Verdict {
	case VerdictSkipOfficial:
		colArrow.Print("-> ")
		colSuccess.Printf("%s: found in official repo [%s], skipping\n", name, decision.OfficialRepo)
		return syncExitSkipOfficial
	case VerdictSkipUnchanged:
		colArrow.Print("-> ")
		colSuccess.Printf("%s: version %s unchanged, skipping\n", name, decision.Metadata.Version)
		return syncExitSkipUnchanged
	case VerdictNotFound:
		cPrintf(colError, "%s: not found upstream\n", name)
		return syncExitNotFound
	case VerdictError:
		cPrintf(colError, "%s: %v\n", name, decision.Err)
		return syncExitNetwork
	}

	logger, err := openBuildLog(name)
	if err != nil {
		cPrintf(colError, "%v\n", err)
		return syncExitBuildFailed
	}
	defer logger.Close()

	bundle, err := NewFetcher().FetchRecipe(ctx, name, logger)
	if err != nil {
		cPrintf(colError, "%s: %v\n", name, err)
		return mapSyncError(err)
	}

	builder := NewBuilder(BuildConfig{
		PkgName:      name,
		RecipeDir:    bundle,
		OutputDir:    OutputDir,
		Force:        *force,
		SkipPGPCheck: *skipPGP,
		SigningKey:   *key,
		Packager:     *packager,
	})
	result, err := builder.Build(ctx, logger)
	if err != nil {
		cPrintf(colError, "%s: %v\n", name, err)
		return mapSyncError(err)
	}

	if err := ledger.Set(name, decision.Metadata.Version); err != nil {
		cPrintf(colError, "%s: ledger update failed: %v\n", name, err)
		return syncExitBuildFailed
	}

	colArrow.Print("-> ")
	colSuccess.Printf("%s: published %d artifact(s)\n", name, len(result.Artifacts))
	for _, a := range result.Artifacts {
		fmt.Printf("  %s\n", a.Filename)
	}
	return syncExitOK
}

// handleRunCommand drives the orchestrator over packages.yaml. Individual
// build failures are reported in the summary without failing the process;
// only a database regeneration failure does.
func handleRunCommand(ctx context.Context, args []string, cfg *Config) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "packages.yaml", "path to the package list")
	jobs := fs.Int("jobs", 0, "max concurrent builds (overrides AURFORGE_JOBS)")
	noIndex := fs.Bool("no-index", false, "skip packages.json generation")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	pf, err := LoadPackagesFile(*configPath)
	if err != nil {
		cPrintf(colError, "%v\n", err)
		return 1
	}
	if pf.Repository.Name != "" {
		RepoName = pf.Repository.Name
	}

	orch := NewOrchestrator(cfg)
	orch.RepoDB = NewRepoDB(OutputDir, RepoName)
	if *jobs > 0 {
		orch.MaxJobs = *jobs
	}
	if !*noIndex {
		orch.IndexPath = filepath.Join(OutputDir, "packages.json")
	}

	summary, err := orch.Run(ctx, pf.Packages)
	PrintSummary(summary)
	if err != nil {
		cPrintf(colError, "fatal: %v\n", err)
		return 1
	}
	return 0
}

// handleRegenCommand rebuilds the repository database on its own.
func handleRegenCommand(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("regen", flag.ContinueOnError)
	out := fs.String("output", "", "output directory (overrides AURFORGE_OUTPUT)")
	repo := fs.String("repo", "", "repository name (overrides AURFORGE_REPO)")
	if err := fs.Parse(args); err != nil {
		return regenExitFailed
	}
	dir := OutputDir
	if *out != "" {
		dir = *out
	}
	name := RepoName
	if *repo != "" {
		name = *repo
	}

	count, err := NewRepoDB(dir, name).Regenerate(ctx)
	if err != nil {
		cPrintf(colError, "%v\n", err)
		return regenExitFailed
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Regenerated %s: %d artifact(s) indexed\n", name, count)
	if count == 0 {
		return regenExitNoFiles
	}
	return regenExitOK
}

// handleIndexCommand regenerates packages.json on its own.
func handleIndexCommand(args []string) int {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	out := fs.String("output", "", "output directory (overrides AURFORGE_OUTPUT)")
	repo := fs.String("repo", "", "repository name (overrides AURFORGE_REPO)")
	dest := fs.String("out", "", "index destination (default <output>/packages.json)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	dir := OutputDir
	if *out != "" {
		dir = *out
	}
	name := RepoName
	if *repo != "" {
		name = *repo
	}
	path := *dest
	if path == "" {
		path = filepath.Join(dir, "packages.json")
	}

	index, err := GenerateIndex(dir, name, path)
	if err != nil {
		cPrintf(colError, "index generation failed: %v\n", err)
		return 1
	}
	colArrow.Print("-> ")
	colSuccess.Printf("Generated %s: %d package(s)\n", path, index.PackageCount)
	return 0
}

// mapSyncError translates an error into the sync exit code taxonomy.
func mapSyncError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return syncExitNotFound
	case errors.Is(err, ErrNetwork):
		return syncExitNetwork
	case errors.Is(err, ErrClone), errors.Is(err, ErrRecipeInvalid):
		return syncExitFetchFailed
	case err != nil:
		return syncExitBuildFailed
	default:
		return syncExitOK
	}
}
