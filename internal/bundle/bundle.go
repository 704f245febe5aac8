// Package bundle computes and verifies the integrity manifest of a run
// directory and packs it into reproducible archives.
package bundle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/receipts/internal/model"
)

// ManifestName is the manifest's file name at the root of the tree it covers.
const ManifestName = "bundle.manifest.json"

// Filter selects files by slash-separated path relative to the walked root.
// A nil Filter selects everything.
type Filter func(rel string) bool

// Exclude returns a Filter rejecting the given relative paths.
func Exclude(rels ...string) Filter {
	skip := make(map[string]bool, len(rels))
	for _, r := range rels {
		skip[r] = true
	}
	return func(rel string) bool { return !skip[rel] }
}

func (f Filter) keep(rel string) bool {
	return f == nil || f(rel)
}

// walk lists regular files under dir, sorted by slash path, skipping the
// root manifest and anything filter rejects.
func walk(dir string, filter Filter) ([]string, error) {
	var rels []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestName || !filter.keep(rel) {
			return nil
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(rels)
	return rels, nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Digest returns the hex SHA-256 of the file at path.
func Digest(path string) (string, error) {
	sum, _, err := hashFile(path)
	return sum, err
}

// Compute checksums every file under dir except the root manifest.
func Compute(dir, runID string, profile model.Profile, now time.Time, filter Filter) (model.BundleManifest, error) {
	m := model.BundleManifest{
		RunID:       runID,
		GeneratedAt: now.UTC(),
		Profile:     profile,
		Files:       []model.BundleFile{},
	}
	rels, err := walk(dir, filter)
	if err != nil {
		return m, err
	}
	for _, rel := range rels {
		sum, n, err := hashFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return m, fmt.Errorf("checksum %s: %w", rel, err)
		}
		m.Files = append(m.Files, model.BundleFile{Path: rel, SHA256: sum, Bytes: n})
	}
	return m, nil
}

// Write stores m as dir/bundle.manifest.json.
func Write(dir string, m model.BundleManifest) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestName), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Read loads a manifest file.
func Read(path string) (model.BundleManifest, error) {
	var m model.BundleManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
