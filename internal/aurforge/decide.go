package aurforge

import (
	"context"
	"errors"
	"fmt"
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Verdict is the single outcome of one package's sync decision.
type Verdict int

const (
	VerdictBuild Verdict = iota
	VerdictSkipOfficial
	VerdictSkipUnchanged
	VerdictNotFound
	VerdictError
)

func (v Verdict) String() string {
	switch v {
	case VerdictBuild:
		return "build"
	case VerdictSkipOfficial:
		return "skip-official"
	case VerdictSkipUnchanged:
		return "skip-unchanged"
	case VerdictNotFound:
		return "not-found"
	case VerdictError:
		return "error"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Decision carries the verdict plus whatever context the verdict was based on.
type Decision struct {
	Verdict      Verdict
	Metadata     *PackageMetadata // set when the AUR query succeeded
	OfficialRepo string           // set for VerdictSkipOfficial
	Err          error            // set for VerdictError
}

// upstreamClient is the slice of AURClient the decision engine needs.
type upstreamClient interface {
	QueryOfficial(ctx context.Context, name string) (bool, string, error)
	QueryPackage(ctx context.Context, name string) (*PackageMetadata, error)
}

// Decide produces exactly one verdict for a package. Precedence is fixed:
// official-repo presence is a hard override (never shadow an official
// package), not-found short-circuits before any version comparison, and
// force bypasses the version comparison but never those two guards.
// A nil ledger means no build history: every surviving package builds.
func Decide(ctx context.Context, client upstreamClient, ledger *Ledger, name string, force bool) Decision {
	found, repo, err := client.QueryOfficial(ctx, name)
	if err != nil {
		// Unknown, not "absent": log and proceed as not-in-official rather
		// than failing the whole decision on a flaky endpoint.
		cPrintf(colWarn, "official-repo check failed for %s, assuming not official: %v\n", name, err)
	} else if found {
		return Decision{Verdict: VerdictSkipOfficial, OfficialRepo: repo}
	}

	meta, err := client.QueryPackage(ctx, name)
	if err != nil {
		if isNotFound(err) {
			return Decision{Verdict: VerdictNotFound}
		}
		return Decision{Verdict: VerdictError, Err: err}
	}

	if force {
		return Decision{Verdict: VerdictBuild, Metadata: meta}
	}

	if ledger == nil {
		return Decision{Verdict: VerdictBuild, Metadata: meta}
	}
	built, ok, err := ledger.Get(name)
	if err != nil {
		return Decision{Verdict: VerdictError, Metadata: meta, Err: err}
	}
	if !ok {
		return Decision{Verdict: VerdictBuild, Metadata: meta}
	}
	if built == meta.Version {
		return Decision{Verdict: VerdictSkipUnchanged, Metadata: meta}
	}
	return Decision{Verdict: VerdictBuild, Metadata: meta}
}
