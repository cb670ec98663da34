package aurforge

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// fakeClient implements upstreamClient with function fields, so each test
// declares only the behavior it cares about.
type fakeClient struct {
	official func(name string) (bool, string, error)
	pkg      func(name string) (*PackageMetadata, error)
}

func (f *fakeClient) QueryOfficial(_ context.Context, name string) (bool, string, error) {
	if f.official == nil {
		return false, "", nil
	}
	return f.official(name)
}

func (f *fakeClient) QueryPackage(_ context.Context, name string) (*PackageMetadata, error) {
	if f.pkg == nil {
		return &PackageMetadata{Name: name, Version: "1.0-1"}, nil
	}
	return f.pkg(name)
}

func testLedger(t *testing.T, entries map[string]string) *Ledger {
	t.Helper()
	ledger := OpenLedger(filepath.Join(t.TempDir(), "versions"))
	for name, version := range entries {
		if err := ledger.Set(name, version); err != nil {
			t.Fatalf("seeding ledger: %v", err)
		}
	}
	return ledger
}

func TestDecideOfficialDominatesVersionChange(t *testing.T) {
	client := &fakeClient{
		official: func(string) (bool, string, error) { return true, "extra", nil },
		pkg: func(name string) (*PackageMetadata, error) {
			return &PackageMetadata{Name: name, Version: "9.9-9"}, nil
		},
	}
	ledger := testLedger(t, map[string]string{"bar": "1.0-1"})

	d := Decide(context.Background(), client, ledger, "bar", false)
	if d.Verdict != VerdictSkipOfficial {
		t.Fatalf("got %v, want skip-official", d.Verdict)
	}
	if d.OfficialRepo != "extra" {
		t.Fatalf("got repo %q, want extra", d.OfficialRepo)
	}
}

func TestDecideOfficialNetworkFailureContinues(t *testing.T) {
	client := &fakeClient{
		official: func(string) (bool, string, error) {
			return false, "", errors.New("connection reset")
		},
	}
	d := Decide(context.Background(), client, testLedger(t, nil), "foo", false)
	if d.Verdict != VerdictBuild {
		t.Fatalf("got %v, want build after official-check failure", d.Verdict)
	}
}

func TestDecideNotFoundShortCircuits(t *testing.T) {
	client := &fakeClient{
		pkg: func(name string) (*PackageMetadata, error) {
			return nil, ErrNotFound
		},
	}
	// force must not bypass the not-found guard
	d := Decide(context.Background(), client, testLedger(t, nil), "ghost", true)
	if d.Verdict != VerdictNotFound {
		t.Fatalf("got %v, want not-found", d.Verdict)
	}
}

func TestDecideNetworkErrorIsError(t *testing.T) {
	client := &fakeClient{
		pkg: func(string) (*PackageMetadata, error) {
			return nil, ErrNetwork
		},
	}
	d := Decide(context.Background(), client, testLedger(t, nil), "foo", false)
	if d.Verdict != VerdictError {
		t.Fatalf("got %v, want error", d.Verdict)
	}
	if !errors.Is(d.Err, ErrNetwork) {
		t.Fatalf("expected wrapped network error, got %v", d.Err)
	}
}

func TestDecideNoLedgerEntryBuilds(t *testing.T) {
	for _, force := range []bool{false, true} {
		d := Decide(context.Background(), &fakeClient{}, testLedger(t, nil), "new", force)
		if d.Verdict != VerdictBuild {
			t.Fatalf("force=%v: got %v, want build for never-built package", force, d.Verdict)
		}
	}
}

func TestDecideVersionComparison(t *testing.T) {
	ledger := testLedger(t, map[string]string{"foo": "1.0-1"})

	cases := []struct {
		name     string
		upstream string
		force    bool
		want     Verdict
	}{
		{"unchanged", "1.0-1", false, VerdictSkipUnchanged},
		{"unchanged forced", "1.0-1", true, VerdictBuild},
		{"newer", "1.1-1", false, VerdictBuild},
		{"changed rel", "1.0-2", false, VerdictBuild},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{
				pkg: func(name string) (*PackageMetadata, error) {
					return &PackageMetadata{Name: name, Version: tc.upstream}, nil
				},
			}
			d := Decide(context.Background(), client, ledger, "foo", tc.force)
			if d.Verdict != tc.want {
				t.Fatalf("got %v, want %v", d.Verdict, tc.want)
			}
		})
	}
}

func TestDecideNilLedgerBuilds(t *testing.T) {
	d := Decide(context.Background(), &fakeClient{}, nil, "foo", false)
	if d.Verdict != VerdictBuild {
		t.Fatalf("got %v, want build with no ledger", d.Verdict)
	}
}
