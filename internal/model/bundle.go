package model

import "time"

// BundleFile is one checksummed entry of a bundle manifest.
type BundleFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// BundleManifest is a checksummed inventory of every file produced by a run,
// excluding the manifest itself.
type BundleManifest struct {
	RunID       string       `json:"run_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Profile     Profile      `json:"profile"`
	Files       []BundleFile `json:"files"`
}
