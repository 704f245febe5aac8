// Package writer persists run artifacts: the event ledger, the coverage
// manifest, workstreams, packets and alias state.
//
// Files are written 0644 and parent directories created 0755. Encoders are
// configured for byte-identical output on identical input.
package writer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/redact"
)

// Artifact names inside a run directory.
const (
	LedgerName      = "ledger.events.jsonl"
	CoverageName    = "coverage.manifest.json"
	WorkstreamsName = "workstreams.yaml"
	PacketName      = "packet.md"
	AliasesName     = "redaction.aliases.json"
	ProfilesDir     = "profiles"
)

const (
	fileMode = 0o644
	dirMode  = 0o755
)

// ProfileDir returns the subdirectory of runDir holding profile p's outputs.
func ProfileDir(runDir string, p model.Profile) string {
	return filepath.Join(runDir, ProfilesDir, string(p))
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), dirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// marshalJSON indents with two spaces, keeps <, > and & literal, and ends
// with a newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteLedger writes events as JSON lines in the given order.
func WriteLedger(path string, events []model.EventEnvelope) error {
	var buf bytes.Buffer
	if err := model.EncodeLedger(&buf, events); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// ReadLedger reads a JSON-lines ledger. Malformed lines are reported as
// *model.LineError.
func ReadLedger(path string) ([]model.EventEnvelope, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	events, err := model.DecodeLedger(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// WriteCoverage writes the coverage manifest as indented JSON.
func WriteCoverage(path string, m model.CoverageManifest) error {
	data, err := marshalJSON(m)
	if err != nil {
		return fmt.Errorf("encode coverage: %w", err)
	}
	return writeFile(path, data)
}

// ReadCoverage reads a coverage manifest.
func ReadCoverage(path string) (model.CoverageManifest, error) {
	var m model.CoverageManifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read coverage: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode coverage %s: %w", path, err)
	}
	return m, nil
}

// WritePacket writes a rendered packet.
func WritePacket(path string, packet []byte) error {
	return writeFile(path, packet)
}

// WriteAliases writes alias state for operator auditing.
func WriteAliases(path string, f redact.AliasFile) error {
	data, err := marshalJSON(f)
	if err != nil {
		return fmt.Errorf("encode aliases: %w", err)
	}
	return writeFile(path, data)
}
