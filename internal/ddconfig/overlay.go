package ddconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Overlay is a small machine-local override layer for fields installs
// commonly want to vary per-host without touching the checked-in YAML:
// socket paths, cache root and brightness. It lives alongside config.yaml
// as an optional goofydeck.toml. All fields are parsed; only Brightness is
// applied (see Apply).
type Overlay struct {
	Brightness   int    `toml:"brightness"`
	UlanziSock   string `toml:"ulanzi_sock"`
	ControlSock  string `toml:"control_sock"`
	HASock       string `toml:"ha_sock"`
	CacheRoot    string `toml:"cache_root"`
}

// LoadOverlay reads a goofydeck.toml overlay file. A missing file is not
// an error — it simply means no overrides apply.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Overlay{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ddconfig: read overlay: %w", err)
	}
	var ov Overlay
	if err := toml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("ddconfig: parse overlay %s: %w", path, err)
	}
	return &ov, nil
}

// Apply sets cfg's base brightness from a positive overlay Brightness
// (clamped to 0-100), in place. The socket-path and cache-root fields are
// not applied anywhere: Config has no fields for them and Apply returns
// nothing.
func (ov *Overlay) Apply(cfg *Config) {
	if ov.Brightness > 0 {
		cfg.BaseBrightness = clamp(ov.Brightness, 0, 100)
	}
}
