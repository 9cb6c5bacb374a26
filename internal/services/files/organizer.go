// -----------------------------------------------------------------------
// File organizer - moves raw backend outputs into the user catalog layout
// -----------------------------------------------------------------------

package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
)

// Organizer relocates raw outputs into {root}/{userID}/{YYYY-MM-DD}/ so the
// catalog layout is stable regardless of how the backend names its files.
type Organizer struct {
	root   string
	logger arbor.ILogger
}

// NewOrganizer creates an organizer rooted at root.
func NewOrganizer(root string, logger arbor.ILogger) interfaces.FileOrganizer {
	return &Organizer{root: root, logger: logger}
}

// Organize moves paths under the per-user date directory and returns the new
// locations in input order. A file that cannot be moved keeps its original
// path in the result rather than failing the batch.
func (o *Organizer) Organize(ctx context.Context, userID string, paths []string) ([]string, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	day := time.Now().UTC().Format("2006-01-02")
	destDir := filepath.Join(o.root, userID, day)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	result := make([]string, 0, len(paths))
	for _, src := range paths {
		dest := filepath.Join(destDir, filepath.Base(src))
		if err := moveFile(src, dest); err != nil {
			o.logger.Warn().Err(err).Str("path", src).Msg("Failed to organize output file")
			result = append(result, src)
			continue
		}
		result = append(result, dest)
	}
	return result, nil
}

// moveFile renames when possible and falls back to copy-and-remove for
// cross-device moves.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
