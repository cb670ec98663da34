package aurforge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// artifactSuffixes are the makepkg output extensions we recognize, in the
// order makepkg.conf PKGEXT values commonly appear.
var artifactSuffixes = []string{".pkg.tar.zst", ".pkg.tar.xz", ".pkg.tar.gz"}

// BuiltArtifact is one binary package landed in the output directory, with
// its optional detached signature. Names are the transport-safe (encoded)
// filenames as they sit on disk after relocation.
type BuiltArtifact struct {
	Filename  string // encoded basename in the output directory
	Signature string // encoded .sig basename, empty when unsigned
}

// BuildResult is the outcome of one successful build-and-relocate sequence.
type BuildResult struct {
	Artifacts []BuiltArtifact
	Duration  time.Duration
}

// Builder runs the isolated build tool over one recipe bundle and relocates
// its artifacts into the shared output directory.
type Builder struct {
	Config BuildConfig
	run    commandFunc
}

// NewBuilder wires a Builder to the real external toolchain.
func NewBuilder(cfg BuildConfig) *Builder {
	return &Builder{Config: cfg, run: runCommand}
}

// makepkgArgs constructs the makepkg invocation. Dependency sync, cleanup,
// forced rebuild and non-interactive mode are always on; signature-check
// skipping and output signing are conditional.
func (b *Builder) makepkgArgs() []string {
	args := []string{"--syncdeps", "--clean", "--force", "--noconfirm"}
	if b.Config.SkipPGPCheck {
		args = append(args, "--skippgpcheck")
	}
	if b.Config.SigningKey != "" {
		args = append(args, "--sign", "--key", b.Config.SigningKey)
	}
	args = append(args, b.Config.ExtraFlags...)
	return args
}

// Build validates the bundle, runs makepkg with the bundle as working
// directory and relocates every produced artifact into the output directory.
// A non-zero tool exit is ErrBuildFailure and is never retried; a clean exit
// with no matching output files is ErrNoArtifacts so the publish step can
// never silently run on an empty result.
func (b *Builder) Build(ctx context.Context, logger io.Writer) (*BuildResult, error) {
	start := time.Now()

	if _, err := os.Stat(filepath.Join(b.Config.RecipeDir, recipeFile)); err != nil {
		return nil, fmt.Errorf("%w: %s missing from %s", ErrRecipeInvalid, recipeFile, b.Config.RecipeDir)
	}

	if b.Config.Packager != "" {
		// makepkg reads PACKAGER from the environment. Process-wide, but
		// every build in a run carries the same identity.
		os.Setenv("PACKAGER", b.Config.Packager)
	}

	if err := b.run(ctx, b.Config.RecipeDir, logger, "makepkg", b.makepkgArgs()...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailure, err)
	}

	produced, err := b.collectArtifacts()
	if err != nil {
		return nil, err
	}
	if len(produced) == 0 {
		return nil, fmt.Errorf("%w: makepkg reported success in %s", ErrNoArtifacts, b.Config.RecipeDir)
	}

	result := &BuildResult{}
	for _, src := range produced {
		artifact, err := b.publishArtifact(src)
		if err != nil {
			return nil, err
		}
		result.Artifacts = append(result.Artifacts, artifact)
	}
	result.Duration = time.Since(start)
	return result, nil
}

// collectArtifacts lists the binary packages makepkg left in the bundle,
// excluding detached signatures, in lexical order.
func (b *Builder) collectArtifacts() ([]string, error) {
	entries, err := os.ReadDir(b.Config.RecipeDir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading bundle %s: %v", ErrPublish, b.Config.RecipeDir, err)
	}
	var produced []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".sig") {
			continue
		}
		for _, suffix := range artifactSuffixes {
			if strings.HasSuffix(e.Name(), suffix) {
				produced = append(produced, filepath.Join(b.Config.RecipeDir, e.Name()))
				break
			}
		}
	}
	sort.Strings(produced)
	return produced, nil
}

// publishArtifact moves one artifact (and its signature, when present) into
// the output directory under its transport-safe name. The move is
// transactional per file: copy to a temp name in the destination, rename
// into place, then drop the source. On any failure no partial file is left
// in the output directory.
func (b *Builder) publishArtifact(src string) (BuiltArtifact, error) {
	var artifact BuiltArtifact

	encoded := EncodeFilename(filepath.Base(src))
	if err := moveFile(src, filepath.Join(b.Config.OutputDir, encoded)); err != nil {
		return artifact, fmt.Errorf("%w: %v", ErrPublish, err)
	}
	artifact.Filename = encoded

	sigSrc := src + ".sig"
	if _, err := os.Stat(sigSrc); err == nil {
		sigEncoded := EncodeFilename(filepath.Base(sigSrc))
		if err := moveFile(sigSrc, filepath.Join(b.Config.OutputDir, sigEncoded)); err != nil {
			return artifact, fmt.Errorf("%w: %v", ErrPublish, err)
		}
		artifact.Signature = sigEncoded
	}
	return artifact, nil
}

// moveFile relocates src to dest across filesystems: write dest.tmp.<nano>,
// rename over dest, remove src. The temp file is cleaned up on failure.
func moveFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	tmpPath := fmt.Sprintf("%s.tmp.%d", dest, time.Now().UnixNano())
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", dest, err)
	}
	os.Remove(src)
	return nil
}
