package daemon

import (
	"context"
	"fmt"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/iconpipe"
	"github.com/wozt/goofydeck-sub000/internal/rendercache"
)

// Pipeline must be set before EnsureTile is called; it is attached
// separately from New so a Daemon can be constructed before the
// subprocess pipeline's Runner is chosen (production vs. test fake).
func (d *Daemon) AttachPipeline(p *iconpipe.Pipeline) { d.pipeline = p }

// EnsureTile implements partial.Renderer: it returns the on-disk path
// for (key, item)'s tile under the given state variant, rendering it
// through the icon pipeline if the content-cache entry is missing.
//
// The cache key depends only on (page, button) — not on the variant,
// preset, or icon content — so stateKey is used solely as a filename
// suffix to keep sibling variants from clobbering each other; it is not
// part of the cache-invalidation identity. This is deliberate, not an
// oversight: editing a preset or icon in place without bumping the page
// or button does not invalidate an already-rendered tile.
func (d *Daemon) EnsureTile(key cmdengine.Key, item ddconfig.Item, stateKey, text string) (string, error) {
	if d.pipeline == nil {
		return "", fmt.Errorf("daemon: icon pipeline not attached")
	}
	ck := rendercache.ContentKey{Page: key.Page, Button: key.Index + 1}
	path := d.store.ContentPath(ck, stateKey)
	if rendercache.Exists(path) {
		return path, nil
	}
	if err := d.store.EnsureDirs(key.Page); err != nil {
		return "", err
	}

	req := d.buildRequest(item, stateKey, text, path)
	if err := d.pipeline.Render(context.Background(), req); err != nil {
		return "", err
	}
	return path, nil
}

// buildRequest resolves an item's effective preset chain (later presets
// override earlier fields that are non-zero) plus any state-variant
// override into an iconpipe.Request.
func (d *Daemon) buildRequest(item ddconfig.Item, stateKey, text, destPath string) iconpipe.Request {
	var preset ddconfig.Preset
	for _, name := range item.EffectivePresets() {
		if p, ok := d.cfg.Presets[name]; ok {
			preset = mergePreset(preset, p)
		}
	}

	icon := item.Icon
	displayText := item.Text
	if stateKey != "" {
		if variant, ok := item.States[stateKey]; ok {
			if variant.Icon != "" {
				icon = variant.Icon
			}
			if variant.Text != "" {
				displayText = variant.Text
			}
			for _, name := range variant.Presets {
				if p, ok := d.cfg.Presets[name]; ok {
					preset = mergePreset(preset, p)
				}
			}
		}
	}
	if text != "" {
		displayText = text
	}

	return iconpipe.Request{
		DestPath:        destPath,
		Size:            iconpipe.ReferenceSize,
		BackgroundColor: orDefault(preset.BackgroundColor, "transparent"),
		BorderWidth:     preset.BorderWidth,
		BorderRadius:    preset.BorderRadius,
		BorderColor:     preset.BorderColor,
		Icon:            icon,
		IconSize:        preset.IconSize,
		IconPadding:     preset.IconPadding,
		IconOffsetX:     preset.IconOffset.X,
		IconOffsetY:     preset.IconOffset.Y,
		IconBrightness:  preset.IconBrightness,
		IconColor:       preset.IconColor,
		Text:            displayText,
		TextColor:       orDefault(preset.TextColor, "white"),
		TextAlign:       orDefault(preset.TextAlign, "center"),
		TextFont:        preset.TextFont,
		TextSize:        preset.TextSize,
		TextOffsetX:     preset.TextOffset.X,
		TextOffsetY:     preset.TextOffset.Y,
	}
}

// mergePreset layers override's non-zero/non-empty fields onto base.
func mergePreset(base, override ddconfig.Preset) ddconfig.Preset {
	if override.BackgroundColor != "" {
		base.BackgroundColor = override.BackgroundColor
	}
	if override.BorderRadius != 0 {
		base.BorderRadius = override.BorderRadius
	}
	if override.BorderWidth != 0 {
		base.BorderWidth = override.BorderWidth
	}
	if override.BorderColor != "" {
		base.BorderColor = override.BorderColor
	}
	if override.IconSize != 0 {
		base.IconSize = override.IconSize
	}
	if override.IconPadding != 0 {
		base.IconPadding = override.IconPadding
	}
	if override.IconOffset.X != 0 || override.IconOffset.Y != 0 {
		base.IconOffset = override.IconOffset
	}
	if override.IconBrightness != 0 {
		base.IconBrightness = override.IconBrightness
	}
	if override.IconColor != "" {
		base.IconColor = override.IconColor
	}
	if override.TextColor != "" {
		base.TextColor = override.TextColor
	}
	if override.TextAlign != "" {
		base.TextAlign = override.TextAlign
	}
	if override.TextFont != "" {
		base.TextFont = override.TextFont
	}
	if override.TextSize != 0 {
		base.TextSize = override.TextSize
	}
	if override.TextOffset.X != 0 || override.TextOffset.Y != 0 {
		base.TextOffset = override.TextOffset
	}
	return base
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
