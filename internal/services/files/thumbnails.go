package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/atelier/internal/interfaces"
)

// ThumbnailService records thumbnail manifests alongside a mirror of the
// outputs layout. Actual image resizing is delegated to the serving layer;
// the manifest marks which artifacts have previews pending.
type ThumbnailService struct {
	root   string
	logger arbor.ILogger
}

type thumbnailManifest struct {
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// NewThumbnailService creates a thumbnail service rooted at root.
func NewThumbnailService(root string, logger arbor.ILogger) interfaces.ThumbnailService {
	return &ThumbnailService{root: root, logger: logger}
}

// GenerateThumbnails is best effort: failures are logged and skipped.
func (t *ThumbnailService) GenerateThumbnails(ctx context.Context, paths []string) {
	for _, src := range paths {
		if err := t.writeManifest(src); err != nil {
			t.logger.Warn().Err(err).Str("path", src).Msg("Failed to record thumbnail manifest")
		}
	}
}

func (t *ThumbnailService) writeManifest(src string) error {
	base := filepath.Base(src)
	dir := filepath.Join(t.root, filepath.Base(filepath.Dir(src)))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	manifest := thumbnailManifest{Source: src, CreatedAt: time.Now().UTC()}
	data, err := json.Marshal(&manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, base+".thumb.json"), data, 0644)
}
