// Package iconpipe orchestrates the external draw_* subprocess stages
// that compose one button's PNG tile: square → border → mdi → optimize
// → text → optimize.
//
// Subprocess wrapping uses context-bounded exec.CommandContext with
// explicit argument slices, never a shell string.
package iconpipe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wozt/goofydeck-sub000/internal/rendercache"
)

// ReferenceSize is the daemon's native tile size.
const ReferenceSize = 196

// Runner invokes an external draw_* (or download) tool. The production
// Runner is DefaultRunner; tests substitute a fake to avoid depending on
// the actual tool binaries.
type Runner func(ctx context.Context, name string, args ...string) error

// DefaultRunner runs name as a subprocess with args, inheriting a
// minimal environment and no stdin/stdout/stderr plumbing beyond error
// reporting.
func DefaultRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = []string{"PATH=" + os.Getenv("PATH")}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("iconpipe: %s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Request describes one tile's desired composition.
type Request struct {
	DestPath string
	Size     int // 0 defaults to ReferenceSize

	BackgroundColor string // hex or "transparent"
	BorderWidth     int
	BorderRadius    int
	BorderColor     string

	Icon           string // "mdi:<slug>" | "local:<path>" | "url:<path>" | ""
	IconSize       int    // 0 = auto
	IconPadding    int
	IconOffsetX    int
	IconOffsetY    int
	IconBrightness int
	IconColor      string

	Text        string
	TextColor   string
	TextAlign   string
	TextFont    string
	TextSize    int
	TextOffsetX int
	TextOffsetY int
}

// Pipeline runs the draw_* stage sequence for a Request.
type Pipeline struct {
	run     Runner
	timeout time.Duration
	mdiDir  string
	store   *rendercache.Store
}

// NewPipeline builds a Pipeline. mdiDir is where downloaded MDI SVGs are
// cached locally.
func NewPipeline(run Runner, timeout time.Duration, store *rendercache.Store, mdiDir string) *Pipeline {
	if run == nil {
		run = DefaultRunner
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Pipeline{run: run, timeout: timeout, mdiDir: mdiDir, store: store}
}

func (p *Pipeline) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, p.timeout)
}

// Render composes req at reference size (196x196).
func (p *Pipeline) Render(ctx context.Context, req Request) error {
	return p.render(ctx, req, ReferenceSize, ReferenceSize)
}

// ScaleFactor computes the non-reference scale used for wallpaper tiles
// and external-icon-sized targets: min(w,h)/196.
func ScaleFactor(w, h int) float64 {
	m := w
	if h < m {
		m = h
	}
	return float64(m) / float64(ReferenceSize)
}

// RenderNonReference composes req scaled to a non-reference target size:
// text size/offsets are scaled by ScaleFactor(targetW, targetH), and
// optimization is capped to 128 colors and only applied when the output
// exceeds the 6 KiB external-icon budget.
func (p *Pipeline) RenderNonReference(ctx context.Context, req Request, targetW, targetH int) error {
	scale := ScaleFactor(targetW, targetH)
	scaled := req
	scaled.TextSize = int(float64(req.TextSize) * scale)
	scaled.TextOffsetX = int(float64(req.TextOffsetX) * scale)
	scaled.TextOffsetY = int(float64(req.TextOffsetY) * scale)
	m := targetW
	if targetH < m {
		m = targetH
	}
	scaled.Size = m
	return p.render(ctx, scaled, targetW, targetH)
}

func (p *Pipeline) render(parent context.Context, req Request, w, h int) error {
	size := req.Size
	if size == 0 {
		size = ReferenceSize
	}

	bg := req.BackgroundColor
	if req.BorderWidth > 0 {
		// A border is requested: the base fill is transparent so the
		// border layer shows through.
		bg = "transparent"
	}

	ctx, cancel := p.ctx(parent)
	defer cancel()
	if err := p.run(ctx, "draw_square", "--size", itoa(size), "--color", bg, "--out", req.DestPath); err != nil {
		return err
	}

	if req.BorderWidth > 0 {
		if err := p.drawBorder(parent, req, size); err != nil {
			return err
		}
	}

	transparentMDIFirstPass := false
	if strings.HasPrefix(req.Icon, "mdi:") {
		slug := strings.TrimPrefix(req.Icon, "mdi:")
		if err := p.ensureMDI(parent, slug); err != nil {
			return err
		}
		maxIcon := size - 2*(req.BorderWidth+req.IconPadding)
		if maxIcon < 1 {
			maxIcon = 1
		}
		iconSize := req.IconSize
		if iconSize <= 0 || iconSize > maxIcon {
			iconSize = maxIcon
		}
		ctx, cancel := p.ctx(parent)
		err := p.run(ctx, "draw_mdi",
			"--svg", p.svgPath(slug),
			"--in", req.DestPath, "--out", req.DestPath,
			"--size", itoa(iconSize),
			"--color", req.IconColor,
			"--offset", fmt.Sprintf("%d,%d", req.IconOffsetX, req.IconOffsetY),
			"--brightness", itoa(req.IconBrightness))
		cancel()
		if err != nil {
			return err
		}
		transparentMDIFirstPass = bg == "transparent"
	}

	nonReference := w != ReferenceSize || h != ReferenceSize
	if !transparentMDIFirstPass {
		if err := p.optimize(parent, req.DestPath, 4, nonReference); err != nil {
			return err
		}
	}

	if req.Text != "" {
		if err := p.drawText(parent, req); err != nil {
			return err
		}
		if err := p.optimize(parent, req.DestPath, 4, nonReference); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) drawBorder(parent context.Context, req Request, size int) error {
	ctx, cancel := p.ctx(parent)
	defer cancel()
	if err := p.run(ctx, "draw_border",
		"--in", req.DestPath, "--out", req.DestPath,
		"--size", itoa(size), "--color", req.BorderColor, "--radius", itoa(req.BorderRadius)); err != nil {
		return err
	}
	inner := size - 2*req.BorderWidth
	if inner < 1 {
		inner = 1
	}
	ctx2, cancel2 := p.ctx(parent)
	defer cancel2()
	return p.run(ctx2, "draw_border",
		"--in", req.DestPath, "--out", req.DestPath,
		"--size", itoa(inner), "--color", req.BorderColor, "--radius", itoa(req.BorderRadius))
}

// drawText runs draw_text, retrying without --font if the font argument
// itself caused the failure (e.g. a missing "Roboto" install).
func (p *Pipeline) drawText(parent context.Context, req Request) error {
	args := []string{
		"--in", req.DestPath, "--out", req.DestPath,
		"--color", req.TextColor, "--align", req.TextAlign,
		"--size", itoa(req.TextSize),
		"--offset", fmt.Sprintf("%d,%d", req.TextOffsetX, req.TextOffsetY),
		"--text", req.Text,
	}
	if req.TextFont != "" {
		withFont := append(append([]string{}, args...), "--font", req.TextFont)
		ctx, cancel := p.ctx(parent)
		err := p.run(ctx, "draw_text", withFont...)
		cancel()
		if err == nil {
			return nil
		}
	}
	ctx, cancel := p.ctx(parent)
	defer cancel()
	return p.run(ctx, "draw_text", args...)
}

// optimize runs draw_optimize. nonReference targets cap colors at 128
// and only run when the file already exceeds the 6 KiB budget.
func (p *Pipeline) optimize(parent context.Context, path string, colors int, nonReference bool) error {
	if nonReference {
		colors = 128
		info, err := os.Stat(path)
		if err != nil || info.Size() <= rendercache.MaxExternalIconBytes {
			return nil
		}
	}
	ctx, cancel := p.ctx(parent)
	defer cancel()
	return p.run(ctx, "draw_optimize", "-c", itoa(colors), "--in", path, "--out", path)
}

func (p *Pipeline) svgPath(slug string) string {
	return filepath.Join(p.mdiDir, slug+".svg")
}

// ensureMDI makes slug's SVG available locally, downloading it once and
// recording failure via a marker file to avoid retry loops.
func (p *Pipeline) ensureMDI(parent context.Context, slug string) error {
	svg := p.svgPath(slug)
	if fileExists(svg) {
		return nil
	}
	marker := p.store.MDIOnceMarkerPath(slug)
	if fileExists(marker) {
		return fmt.Errorf("iconpipe: mdi %q previously failed to download, not retrying", slug)
	}
	if err := os.MkdirAll(filepath.Dir(svg), 0o755); err != nil {
		return fmt.Errorf("iconpipe: mdi cache dir: %w", err)
	}
	ctx, cancel := p.ctx(parent)
	defer cancel()
	if err := p.run(ctx, "download_mdi", "--slug", slug, "--out", svg); err != nil {
		_ = os.MkdirAll(filepath.Dir(marker), 0o755)
		_ = os.WriteFile(marker, []byte{}, 0o644)
		return fmt.Errorf("iconpipe: download mdi %q: %w", slug, err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func itoa(n int) string { return strconv.Itoa(n) }
