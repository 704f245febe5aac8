package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// archiveEpoch is the modification time stamped on every archive entry.
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Archive zips the files under dir (manifest included) into dest. Entries
// are sorted, stamped with a fixed time and mode 0644, so identical trees
// give identical archives. dest is replaced atomically.
func Archive(dir, dest string, filter Filter) error {
	rels, err := walk(dir, filter)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		rels = append([]string{ManifestName}, rels...)
	}

	tmp := dest + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	if err := writeZip(out, dir, rels); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func writeZip(w io.Writer, dir string, rels []string) error {
	zw := zip.NewWriter(w)
	for _, rel := range rels {
		hdr := &zip.FileHeader{
			Name:     rel,
			Method:   zip.Deflate,
			Modified: archiveEpoch,
		}
		hdr.SetMode(0o644)
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
		if err := copyFile(entry, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return fmt.Errorf("archive %s: %w", rel, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
