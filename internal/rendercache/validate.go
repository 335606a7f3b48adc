package rendercache

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
)

// MaxExternalIconBytes and MaxExternalIconDim bound external icon
// uploads accepted into the cache.
const (
	MaxExternalIconBytes = 6 * 1024
	MaxExternalIconDim   = 196
)

// ValidateExternalIcon checks that path exists, is non-empty, at most
// MaxExternalIconBytes, square, and at most MaxExternalIconDim on a
// side. It only decodes the PNG header (image.DecodeConfig) — the
// actual codec work stays with the external draw_* tools; this is
// header-only validation glue, not a reimplemented decoder.
func ValidateExternalIcon(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("rendercache: external icon missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("rendercache: external icon %s is empty", path)
	}
	if info.Size() > MaxExternalIconBytes {
		return fmt.Errorf("rendercache: external icon %s exceeds %d bytes", path, MaxExternalIconBytes)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("rendercache: open external icon: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("rendercache: external icon %s is not a valid image: %w", path, err)
	}
	if cfg.Width != cfg.Height {
		return fmt.Errorf("rendercache: external icon %s is not square (%dx%d)", path, cfg.Width, cfg.Height)
	}
	if cfg.Width > MaxExternalIconDim {
		return fmt.Errorf("rendercache: external icon %s exceeds %dx%d", path, MaxExternalIconDim, MaxExternalIconDim)
	}
	return nil
}
