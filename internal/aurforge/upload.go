package aurforge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// handleUploadCommand implements 'aurforge upload': publish the output
// directory (artifacts, signatures, database, files index, packages.json)
// to the configured S3/R2 mirror. With --cleanup, remote objects with no
// local counterpart are deleted so the mirror mirrors the directory exactly.
func handleUploadCommand(ctx context.Context, args []string, cfg *Config) error {
	cleanup := false
	for _, arg := range args {
		if arg == "--cleanup" || arg == "-c" {
			cleanup = true
		}
	}

	r2, err := NewR2Client(cfg)
	if err != nil {
		return err
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Scanning published repository in %s\n", OutputDir)
	local, err := listPublishedFiles(OutputDir)
	if err != nil {
		return err
	}
	if len(local) == 0 {
		cPrintf(colWarn, "nothing to upload from %s\n", OutputDir)
		return nil
	}

	remote := make(map[string]int64)
	objects, err := r2.ListObjects(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list mirror objects: %w", err)
	}
	for _, obj := range objects {
		remote[obj.Key] = obj.Size
	}

	var uploaded int
	for _, name := range local {
		path := filepath.Join(OutputDir, name)
		info, err := os.Stat(path)
		if err != nil {
			return err
		}

		// Database archives and indexes change every run; artifacts are
		// content-addressed by name+version so a size match is current.
		if size, ok := remote[name]; ok && size == info.Size() && isArtifactFile(name) {
			debugf("Mirror already has %s (%d bytes)\n", name, size)
			continue
		}

		colArrow.Print("-> ")
		colSuccess.Printf("Uploading %s\n", name)
		if err := r2.UploadLocalFile(ctx, name, path); err != nil {
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		uploaded++
	}

	if cleanup {
		localSet := make(map[string]bool, len(local))
		for _, name := range local {
			localSet[name] = true
		}
		for key := range remote {
			if localSet[key] {
				continue
			}
			colArrow.Print("-> ")
			cPrintf(colWarn, "Deleting stale mirror object %s\n", key)
			if err := r2.DeleteFile(ctx, key); err != nil {
				return fmt.Errorf("failed to delete %s: %w", key, err)
			}
		}
	}

	colArrow.Print("-> ")
	colSuccess.Printf("Upload complete: %d object(s) transferred\n", uploaded)
	return nil
}

// listPublishedFiles enumerates everything worth mirroring from the output
// directory, sorted so artifacts land before the database that references
// them (plain files first, then db/files archives, then their aliases).
func listPublishedFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var artifacts, databases, aliases []string
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasPrefix(name, "."), strings.Contains(name, ".tmp."), strings.HasSuffix(name, ".lock"):
			continue
		case strings.HasSuffix(name, ".db"), strings.HasSuffix(name, ".files"):
			aliases = append(aliases, name)
		case strings.Contains(name, ".db.tar"), strings.Contains(name, ".files.tar"):
			databases = append(databases, name)
		case isArtifactFile(name), strings.HasSuffix(name, ".sig"), name == "packages.json":
			artifacts = append(artifacts, name)
		}
	}
	sort.Strings(artifacts)
	sort.Strings(databases)
	sort.Strings(aliases)

	out := append(artifacts, databases...)
	return append(out, aliases...), nil
}

func isArtifactFile(name string) bool {
	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
