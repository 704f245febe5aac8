package bundle

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/receipts/internal/model"
)

// MismatchKind classifies a verification failure.
type MismatchKind string

const (
	Missing    MismatchKind = "missing"
	Changed    MismatchKind = "changed"
	Unexpected MismatchKind = "unexpected"
)

// Mismatch is one difference between a manifest and the files on disk.
type Mismatch struct {
	Path string       `json:"path"`
	Kind MismatchKind `json:"kind"`
	Want string       `json:"want,omitempty"` // recorded sha256, empty for Unexpected
	Got  string       `json:"got,omitempty"`  // actual sha256, empty for Missing
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s", m.Kind, m.Path)
}

// Verify re-checksums dir against dir/bundle.manifest.json. Files the filter
// rejects are neither expected nor reported. An empty result means intact.
func Verify(dir string, filter Filter) (model.BundleManifest, []Mismatch, error) {
	m, err := Read(filepath.Join(dir, ManifestName))
	if err != nil {
		return m, nil, err
	}
	actual, err := Compute(dir, m.RunID, m.Profile, m.GeneratedAt, filter)
	if err != nil {
		return m, nil, err
	}

	onDisk := make(map[string]model.BundleFile, len(actual.Files))
	for _, f := range actual.Files {
		onDisk[f.Path] = f
	}
	var out []Mismatch
	recorded := make(map[string]bool, len(m.Files))
	for _, want := range m.Files {
		recorded[want.Path] = true
		got, ok := onDisk[want.Path]
		switch {
		case !ok:
			out = append(out, Mismatch{Path: want.Path, Kind: Missing, Want: want.SHA256})
		case got.SHA256 != want.SHA256 || got.Bytes != want.Bytes:
			out = append(out, Mismatch{Path: want.Path, Kind: Changed, Want: want.SHA256, Got: got.SHA256})
		}
	}
	for _, got := range actual.Files {
		if !recorded[got.Path] {
			out = append(out, Mismatch{Path: got.Path, Kind: Unexpected, Got: got.SHA256})
		}
	}
	return m, out, nil
}
