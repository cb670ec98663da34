package aurforge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// recipeFile is the mandatory build recipe at the top level of every bundle.
const recipeFile = "PKGBUILD"

// Fetcher clones recipe bundles from the AUR git store.
type Fetcher struct {
	BaseURL  string // e.g. https://aur.archlinux.org
	DestRoot string // parent directory for per-package bundles
	run      commandFunc
}

// NewFetcher builds a Fetcher rooted at RecipesDir.
func NewFetcher() *Fetcher {
	return &Fetcher{
		BaseURL:  aurBaseURL,
		DestRoot: RecipesDir,
		run:      runCommand,
	}
}

// FetchRecipe clones the package's recipe repository into a fresh bundle
// directory and returns its path. Any pre-existing bundle for the package is
// destroyed first so the bundle always matches exactly one upstream revision.
// A clone that succeeds but lacks the recipe file is a malformed upstream
// repository and fails with ErrRecipeInvalid.
func (f *Fetcher) FetchRecipe(ctx context.Context, name string, logger io.Writer) (string, error) {
	dest := filepath.Join(f.DestRoot, name)

	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("%w: could not remove stale bundle %s: %v", ErrClone, dest, err)
	}
	if err := os.MkdirAll(f.DestRoot, 0o755); err != nil {
		return "", fmt.Errorf("%w: could not create bundle root %s: %v", ErrClone, f.DestRoot, err)
	}

	cloneURL := fmt.Sprintf("%s/%s.git", f.BaseURL, name)
	debugf("Cloning %s -> %s\n", cloneURL, dest)
	if err := f.run(ctx, f.DestRoot, logger, "git", "clone", "--depth", "1", cloneURL, dest); err != nil {
		os.RemoveAll(dest)
		return "", fmt.Errorf("%w: %v", ErrClone, err)
	}

	if _, err := os.Stat(filepath.Join(dest, recipeFile)); err != nil {
		return "", fmt.Errorf("%w: %s missing from %s", ErrRecipeInvalid, recipeFile, dest)
	}
	return dest, nil
}
