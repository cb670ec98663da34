package aurforge

import (
	"archive/tar"
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"lukechampine.com/blake3"
)

// IndexEntry is one package in the generated packages.json.
type IndexEntry struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	License     []string `json:"license"`
	Arch        string   `json:"arch"`
	Size        string   `json:"size"`
	BuildDate   string   `json:"build_date"`
	Filename    string   `json:"filename"`
	B3Sum       string   `json:"b3sum"`
	Depends     []string `json:"depends"`
}

// PackagesIndex is the full packages.json document consumed by the web index.
type PackagesIndex struct {
	Repository   string       `json:"repository"`
	LastUpdated  string       `json:"last_updated"`
	PackageCount int          `json:"package_count"`
	Packages     []IndexEntry `json:"packages"`
}

// GenerateIndex scans the output directory's artifacts and writes
// packages.json alongside them. Entries are ordered by filename so repeated
// runs over an unchanged directory produce identical output (modulo the
// timestamp).
func GenerateIndex(dir, repoName, outPath string) (*PackagesIndex, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".sig") {
			continue
		}
		for _, suffix := range artifactSuffixes {
			if strings.HasSuffix(e.Name(), suffix) {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)

	index := &PackagesIndex{
		Repository:  repoName,
		LastUpdated: time.Now().UTC().Format("2006-01-02 15:04 MST"),
	}
	for _, name := range names {
		entry, err := ReadArtifactMetadata(filepath.Join(dir, name))
		if err != nil {
			cPrintf(colWarn, "could not read metadata from %s: %v\n", name, err)
			entry = entryFromFilename(filepath.Join(dir, name))
		}
		index.Packages = append(index.Packages, entry)
	}
	index.PackageCount = len(index.Packages)

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", outPath, err)
	}
	return index, nil
}

// ReadArtifactMetadata extracts .PKGINFO fields and computes the checksum
// for one local artifact.
func ReadArtifactMetadata(path string) (IndexEntry, error) {
	entry := IndexEntry{
		Filename: filepath.Base(path),
		License:  []string{},
		Depends:  []string{},
	}

	info, err := os.Stat(path)
	if err != nil {
		return entry, err
	}
	entry.BuildDate = info.ModTime().Format("2006-01-02 15:04")

	sum, err := ComputeChecksum(path)
	if err != nil {
		return entry, fmt.Errorf("failed to compute checksum: %w", err)
	}
	entry.B3Sum = sum

	meta, err := scanArtifactMetadata(path)
	if err != nil {
		return entry, err
	}

	entry.Name = meta["pkgname"]
	entry.Version = meta["pkgver"]
	entry.Description = meta["pkgdesc"]
	entry.URL = meta["url"]
	if licenses := meta["license"]; licenses != "" {
		entry.License = strings.Split(licenses, "\x1f")
	}
	entry.Arch = meta["arch"]
	entry.Size = meta["size"]
	if deps := meta["depend"]; deps != "" {
		entry.Depends = strings.Split(deps, "\x1f")
	}
	return entry, nil
}

// scanArtifactMetadata reads the .PKGINFO member out of a compressed
// artifact in one pass. Multi-valued keys (license, depend) are joined with
// an internal separator.
func scanArtifactMetadata(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var reader io.Reader
	switch {
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	case strings.HasSuffix(path, ".xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, err
		}
		reader = xr
	case strings.HasSuffix(path, ".gz"):
		gr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		reader = gr
	default:
		return nil, fmt.Errorf("unrecognized artifact compression: %s", path)
	}

	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if filepath.Base(header.Name) != ".PKGINFO" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read .PKGINFO from %s: %w", path, err)
		}
		return parsePkgInfo(data), nil
	}
	return nil, fmt.Errorf(".PKGINFO not found in %s", path)
}

// parsePkgInfo parses "key = value" lines; repeated keys accumulate.
func parsePkgInfo(data []byte) map[string]string {
	meta := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
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
		if existing, ok := meta[key]; ok {
			meta[key] = existing + "\x1f" + val
		} else {
			meta[key] = val
		}
	}
	return meta
}

// entryFromFilename is the fallback when an artifact has no readable
// .PKGINFO: parse name-version-rel-arch out of the filename itself.
func entryFromFilename(path string) IndexEntry {
	entry := IndexEntry{
		Filename: filepath.Base(path),
		License:  []string{},
		Depends:  []string{},
	}
	if info, err := os.Stat(path); err == nil {
		entry.BuildDate = info.ModTime().Format("2006-01-02 15:04")
	}

	stem := filepath.Base(path)
	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(stem, suffix) {
			stem = strings.TrimSuffix(stem, suffix)
			break
		}
	}
	parts := strings.Split(stem, "-")
	if len(parts) >= 4 {
		entry.Name = strings.Join(parts[:len(parts)-3], "-")
		entry.Version = strings.Join(parts[len(parts)-3:len(parts)-1], "-")
		entry.Arch = parts[len(parts)-1]
	} else if len(parts) >= 2 {
		entry.Name = parts[0]
		entry.Version = strings.Join(parts[1:], "-")
	} else {
		entry.Name = stem
	}
	return entry
}

// ComputeChecksum returns the BLAKE3 hex digest of a file.
func ComputeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
