package aurforge

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Outcome records what happened to one package during a run. Err is set when
// the verdict was "build" but the fetch/build/publish sequence failed, or
// when the decision itself errored.
type Outcome struct {
	Package   string
	Verdict   Verdict
	Artifacts []BuiltArtifact
	Err       error
	Duration  time.Duration
}

// Failed reports whether this outcome represents something broken, as
// opposed to nothing-to-do.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// RunSummary is the reduced view of a full run, for the operator.
type RunSummary struct {
	Built            int
	SkippedOfficial  int
	SkippedUnchanged int
	NotFound         int
	Errors           int
	Failed           []string
	Outcomes         []Outcome
	ArtifactCount    int // artifacts indexed by the database regeneration
}

// Orchestrator drives the decision engine and build executor over the full
// package list, then triggers the database regeneration exactly once.
type Orchestrator struct {
	MaxJobs int
	Client  upstreamClient
	Ledger  *Ledger
	Fetcher *Fetcher
	RepoDB  *RepoDB

	// IndexPath, when set, regenerates packages.json after a successful
	// database regeneration.
	IndexPath string

	// BuildConfigFor derives the per-package build configuration.
	BuildConfigFor func(spec PackageSpec) BuildConfig

	// Dep injection for testing
	Builder func(ctx context.Context, cfg BuildConfig, logger io.Writer) (*BuildResult, error)

	mu       sync.Mutex
	outcomes []Outcome
}

// NewOrchestrator assembles the production pipeline from the resolved
// configuration.
func NewOrchestrator(cfg *Config) *Orchestrator {
	maxJobs := 1
	if v := cfg.Values["AURFORGE_JOBS"]; v != "" {
		fmt.Sscanf(v, "%d", &maxJobs)
		if maxJobs < 1 {
			maxJobs = 1
		}
	}

	o := &Orchestrator{
		MaxJobs: maxJobs,
		Client:  NewAURClient(cfg),
		Ledger:  OpenLedger(LedgerFile),
		Fetcher: NewFetcher(),
		RepoDB:  NewRepoDB(OutputDir, RepoName),
		BuildConfigFor: func(spec PackageSpec) BuildConfig {
			return BuildConfig{
				PkgName:      spec.Name,
				OutputDir:    OutputDir,
				Force:        spec.Force,
				SkipPGPCheck: spec.SkipPGPCheck,
				SigningKey:   cfg.Values["AURFORGE_SIGNING_KEY"],
				Packager:     cfg.Values["AURFORGE_PACKAGER"],
				ExtraFlags:   spec.BuildFlags,
			}
		},
	}
	o.Builder = func(ctx context.Context, bc BuildConfig, logger io.Writer) (*BuildResult, error) {
		return NewBuilder(bc).Build(ctx, logger)
	}
	return o
}

// Run processes every package with a bounded worker pool, then runs the
// database regeneration as a single-writer barrier once all build-or-skip
// outcomes are known. Per-package failures are accumulated, never raised;
// only a database regeneration failure is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, pkgs []PackageSpec) (*RunSummary, error) {
	sem := make(chan struct{}, o.MaxJobs)
	var wg sync.WaitGroup

	for _, spec := range pkgs {
		sem <- struct{}{}
		wg.Add(1)
		go func(spec PackageSpec) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome := o.syncPackage(ctx, spec)
			o.mu.Lock()
			o.outcomes = append(o.outcomes, outcome)
			o.mu.Unlock()
		}(spec)
	}
	wg.Wait()

	summary := o.reduce()

	count, err := o.RepoDB.Regenerate(ctx)
	if err != nil {
		return summary, err
	}
	summary.ArtifactCount = count

	if o.IndexPath != "" {
		if _, err := GenerateIndex(o.RepoDB.Dir, o.RepoDB.Name, o.IndexPath); err != nil {
			// The repository itself is consistent; a failed web index is
			// reported but does not fail the run.
			cPrintf(colWarn, "packages.json generation failed: %v\n", err)
		}
	}
	return summary, nil
}

// syncPackage runs decision, fetch, build and ledger update for one package.
func (o *Orchestrator) syncPackage(ctx context.Context, spec PackageSpec) Outcome {
	start := time.Now()
	outcome := Outcome{Package: spec.Name}

	decision := Decide(ctx, o.Client, o.Ledger, spec.Name, spec.Force)
	outcome.Verdict = decision.Verdict

	switch decision.Verdict {
	case VerdictSkipOfficial:
		colArrow.Print("-> ")
		colSuccess.Printf("%s: found in official repo [%s], skipping\n", spec.Name, decision.OfficialRepo)
		return outcome
	case VerdictSkipUnchanged:
		colArrow.Print("-> ")
		colSuccess.Printf("%s: version %s unchanged, skipping\n", spec.Name, decision.Metadata.Version)
		return outcome
	case VerdictNotFound:
		cPrintf(colWarn, "%s: not found upstream\n", spec.Name)
		return outcome
	case VerdictError:
		outcome.Err = decision.Err
		return outcome
	}

	colArrow.Print("-> ")
	colSuccess.Printf("%s: building version %s\n", spec.Name, decision.Metadata.Version)

	logger, err := openBuildLog(spec.Name)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	defer logger.Close()

	bundle, err := o.Fetcher.FetchRecipe(ctx, spec.Name, logger)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	bc := o.BuildConfigFor(spec)
	bc.RecipeDir = bundle

	result, err := o.Builder(ctx, bc, logger)
	if err != nil {
		outcome.Err = err
		return outcome
	}
	outcome.Artifacts = result.Artifacts
	outcome.Duration = time.Since(start)

	// The ledger is only advanced once the whole build-and-publish sequence
	// succeeded; a failure above leaves the old entry so the next run retries.
	if err := o.Ledger.Set(spec.Name, decision.Metadata.Version); err != nil {
		outcome.Err = err
		return outcome
	}
	return outcome
}

// reduce folds the collected outcomes into a summary.
func (o *Orchestrator) reduce() *RunSummary {
	o.mu.Lock()
	defer o.mu.Unlock()

	summary := &RunSummary{Outcomes: make([]Outcome, len(o.outcomes))}
	copy(summary.Outcomes, o.outcomes)
	sort.Slice(summary.Outcomes, func(i, j int) bool {
		return summary.Outcomes[i].Package < summary.Outcomes[j].Package
	})

	for _, out := range summary.Outcomes {
		if out.Failed() {
			summary.Errors++
			summary.Failed = append(summary.Failed, out.Package)
			continue
		}
		switch out.Verdict {
		case VerdictBuild:
			summary.Built++
		case VerdictSkipOfficial:
			summary.SkippedOfficial++
		case VerdictSkipUnchanged:
			summary.SkippedUnchanged++
		case VerdictNotFound:
			summary.NotFound++
		}
	}
	return summary
}

// PrintSummary renders the run summary for the operator, keeping skip
// reasons distinct from failures.
func PrintSummary(summary *RunSummary) {
	fmt.Println()
	colArrow.Print("-> ")
	colSuccess.Println("Run summary")
	fmt.Printf("  built:            %d\n", summary.Built)
	fmt.Printf("  skipped official: %d\n", summary.SkippedOfficial)
	fmt.Printf("  skipped current:  %d\n", summary.SkippedUnchanged)
	fmt.Printf("  not found:        %d\n", summary.NotFound)
	fmt.Printf("  failed:           %d\n", summary.Errors)
	fmt.Printf("  indexed:          %d artifact(s)\n", summary.ArtifactCount)

	if len(summary.Failed) > 0 {
		colArrow.Print("-> ")
		colError.Println("Failed packages:")
		for _, out := range summary.Outcomes {
			if out.Failed() {
				fmt.Printf("  - %-20s %v\n", out.Package, out.Err)
			}
		}
	}
}
