package ddconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and validates the YAML config at path, returning a fully
// defaulted Config. The only fatal conditions are an unreadable/unparsable
// file, a non-mapping root document, a missing $root page, or two system
// buttons configured on the same position.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Message: fmt.Sprintf("cannot read config: %v", err)}
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{
			File:    path,
			Message: fmt.Sprintf("YAML parse error: %v", err),
			Hint:    "check indentation and colons",
		}
	}

	cfg := Default()

	if raw.Brightness > 0 {
		cfg.BaseBrightness = clamp(raw.Brightness, 0, 100)
	}
	if raw.Sleep.DimBrightness > 0 {
		cfg.SleepDimBrightness = clamp(raw.Sleep.DimBrightness, 0, 100)
	}
	cfg.SleepDimTimeoutSec = raw.Sleep.DimTimeout
	cfg.SleepTimeoutSec = raw.Sleep.SleepTimeout
	if raw.CmdTimeoutMs > 0 {
		cfg.CmdTimeoutMs = raw.CmdTimeoutMs
	}
	cfg.Wallpaper = raw.Wallpaper

	cfg.PosBack = resolvePosition(raw.SystemButtons.Back.Position, DefaultPosBack)
	cfg.PosPrev = resolvePosition(raw.SystemButtons.Previous.Position, DefaultPosPrev)
	cfg.PosNext = resolvePosition(raw.SystemButtons.Next.Position, DefaultPosNext)

	for name, preset := range raw.Presets {
		cfg.Presets[name] = preset
	}

	cfg.Pages = make(map[string]Page, len(raw.Pages))
	for name, rp := range raw.Pages {
		items := make([]Item, len(rp.Buttons))
		for i, it := range rp.Buttons {
			items[i] = fillItemDefaults(it)
		}
		cfg.Pages[name] = Page{
			Name:      name,
			Items:     items,
			Wallpaper: rp.Wallpaper,
		}
	}

	if _, ok := cfg.Pages[RootPageName]; !ok {
		return nil, &ParseError{
			File:    path,
			Field:   "pages." + RootPageName,
			Message: "missing required " + RootPageName + " page",
			Hint:    "every config must define a pages:\n  $root:\n    buttons: [...] entry",
		}
	}

	if err := validatePositions(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func resolvePosition(configured, fallback int) int {
	if configured >= 1 && configured <= 13 {
		return configured
	}
	return fallback
}

func validatePositions(cfg *Config) error {
	positions := map[int]string{}
	for _, pair := range []struct {
		name string
		pos  int
	}{
		{"back", cfg.PosBack},
		{"prev", cfg.PosPrev},
		{"next", cfg.PosNext},
	} {
		if other, ok := positions[pair.pos]; ok {
			return &ParseError{
				Field:   "system_buttons",
				Message: fmt.Sprintf("position %d used by both %s and %s", pair.pos, other, pair.name),
			}
		}
		positions[pair.pos] = pair.name
	}
	return nil
}

func fillItemDefaults(it Item) Item {
	if len(it.Presets) == 0 {
		it.Presets = StringList{"default"}
	}
	if it.Poll != nil {
		if it.Poll.Data.MaxLen <= 0 {
			it.Poll.Data.MaxLen = 32
		}
	}
	if it.CmdText == nil {
		opts := DefaultCmdTextOpts()
		it.CmdText = &opts
	} else if it.CmdText.MaxLen <= 0 {
		it.CmdText.MaxLen = 32
	}
	return it
}

// DumpYAML renders cfg back to YAML, for the --dump-config diagnostic.
func DumpYAML(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
