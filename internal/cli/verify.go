package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/receipts/internal/bundle"
	"github.com/roach88/receipts/internal/model"
	"github.com/roach88/receipts/internal/writer"
)

// VerifyReport is the result of checking a run directory.
type VerifyReport struct {
	RunID   string         `json:"run_id"`
	OK      bool           `json:"ok"`
	Bundles []BundleResult `json:"bundles"`
}

// BundleResult is the result of checking one manifest.
type BundleResult struct {
	Dir        string            `json:"dir"`
	Profile    model.Profile     `json:"profile"`
	Files      int               `json:"files"`
	Mismatches []bundle.Mismatch `json:"mismatches,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <run-dir>",
		Short: "Check a run directory against its bundle manifests",
		Long: `Re-checksum every file of a run directory and compare it with the
top-level bundle.manifest.json and each profiles/<p>/bundle.manifest.json.

Exits 1 if any file is missing, changed or unexpected.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, rootOpts, args[0])
		},
	}
}

func runVerify(cmd *cobra.Command, opts *RootOptions, dir string) error {
	out := opts.formatter(cmd)

	report, err := verifyRun(dir)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInput, "cannot verify "+dir, err)
	}

	if out.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		for _, b := range report.Bundles {
			status := "ok"
			if len(b.Mismatches) > 0 {
				status = fmt.Sprintf("%d mismatches", len(b.Mismatches))
			}
			fmt.Fprintf(out.Writer, "%s [%s]: %d files, %s\n", b.Dir, b.Profile, b.Files, status)
			for _, m := range b.Mismatches {
				fmt.Fprintf(out.Writer, "  %s\n", m)
			}
		}
	}

	if !report.OK {
		return NewExitError(ExitFailure, "bundle verification failed")
	}
	return nil
}

// verifyRun checks the run manifest, excluding alias state, then every
// profile manifest present.
func verifyRun(dir string) (VerifyReport, error) {
	top, mismatches, err := bundle.Verify(dir, bundle.Exclude(writer.AliasesName))
	if err != nil {
		return VerifyReport{}, err
	}
	report := VerifyReport{
		RunID: top.RunID,
		OK:    len(mismatches) == 0,
		Bundles: []BundleResult{{
			Dir:        ".",
			Profile:    top.Profile,
			Files:      len(top.Files),
			Mismatches: mismatches,
		}},
	}

	entries, err := os.ReadDir(filepath.Join(dir, writer.ProfilesDir))
	if errors.Is(err, os.ErrNotExist) {
		return report, nil
	}
	if err != nil {
		return report, err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		pdir := filepath.Join(dir, writer.ProfilesDir, e.Name())
		if _, err := os.Stat(filepath.Join(pdir, bundle.ManifestName)); err != nil {
			continue
		}
		m, mismatches, err := bundle.Verify(pdir, nil)
		if err != nil {
			return report, err
		}
		if m.RunID != top.RunID {
			mismatches = append(mismatches, bundle.Mismatch{Path: bundle.ManifestName, Kind: bundle.Changed, Want: top.RunID, Got: m.RunID})
		}
		report.Bundles = append(report.Bundles, BundleResult{
			Dir:        writer.ProfilesDir + "/" + e.Name(),
			Profile:    m.Profile,
			Files:      len(m.Files),
			Mismatches: mismatches,
		})
		if len(mismatches) > 0 {
			report.OK = false
		}
	}
	return report, nil
}
