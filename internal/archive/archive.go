// Package archive implements the archive (un)packer (spec.md §4.5): a
// thin wrapper over mholt/archiver/v3 that extracts an uploaded mod
// archive to a working directory and repacks a translated working
// directory back into an archive, canonicalizing entry paths to forward
// slashes. Adapted from the teacher's internal/core/dependencies.Extract,
// generalized from "find named binaries inside an arbitrary archive" to
// "extract/repack a whole directory tree".
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archiver/v3"
)

// Extract unpacks archivePath into destDir, creating destDir if needed.
// The archive type is inferred from the file extension the same way the
// teacher's Extract does (.zip/.7z/.tar.xz go through the matching
// archiver/v3 handler).
func Extract(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("archive: create dest dir %s: %w", destDir, err)
	}

	ext := strings.ToLower(filepath.Ext(archivePath))
	var err error
	switch {
	case strings.HasSuffix(strings.ToLower(archivePath), ".tar.xz"):
		err = archiver.NewTarXz().Unarchive(archivePath, destDir)
	case ext == ".zip", ext == ".7z", ext == ".tar", ext == ".xz", ext == ".gz":
		err = archiver.Unarchive(archivePath, destDir)
	default:
		return fmt.Errorf("archive: unsupported archive type %q", ext)
	}
	if err != nil {
		return fmt.Errorf("archive: extract %s: %w", archivePath, err)
	}
	return nil
}

// Pack archives srcDir's contents into archivePath as a zip, the
// container format spec.md §4.5 mandates for output archives regardless
// of the input container type.
func Pack(srcDir, archivePath string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("archive: read %s: %w", srcDir, err)
	}

	sources := make([]string, 0, len(entries))
	for _, e := range entries {
		sources = append(sources, filepath.Join(srcDir, e.Name()))
	}

	z := archiver.NewZip()
	if err := z.Archive(sources, archivePath); err != nil {
		return fmt.Errorf("archive: pack %s: %w", srcDir, err)
	}
	return nil
}

// CanonicalPath converts an OS-native relative path to the forward-slash
// form spec.md §4.5 requires for archive entry names and FileUnit
// identifiers.
func CanonicalPath(relPath string) string {
	return filepath.ToSlash(relPath)
}
