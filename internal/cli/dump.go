package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
)

// dumpSnapshotFile holds the last --dump-config output under the state
// dir, so a later run can report what changed since the previous dump.
const dumpSnapshotFile = "last_dump_config.yaml"

// runDumpConfig prints the fully-defaulted configuration as YAML and,
// if a previous dump is on disk, a similarity hint against it using a
// diffmatchpatch Levenshtein distance.
func runDumpConfig(f Flags) error {
	cfg, err := ddconfig.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	overlay, err := ddconfig.LoadOverlay(f.OverlayPath)
	if err == nil {
		overlay.Apply(cfg)
	}

	out, err := ddconfig.DumpYAML(cfg)
	if err != nil {
		return fmt.Errorf("dump config: %w", err)
	}

	snapshotPath := filepath.Join(f.StateDir, dumpSnapshotFile)
	if prev, err := os.ReadFile(snapshotPath); err == nil {
		reportConfigSimilarity(string(prev), string(out))
	}

	if _, err := os.Stdout.Write(out); err != nil {
		return err
	}

	if err := os.MkdirAll(f.StateDir, 0o755); err == nil {
		_ = os.WriteFile(snapshotPath, out, 0o644)
	}
	return nil
}

func reportConfigSimilarity(prev, cur string) {
	if prev == cur {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(prev, cur, true)
	dist := dmp.DiffLevenshtein(diffs)
	maxLen := len(prev)
	if len(cur) > maxLen {
		maxLen = len(cur)
	}
	similarity := 1.0
	if maxLen > 0 {
		similarity = 1.0 - float64(dist)/float64(maxLen)
	}
	fmt.Fprintf(os.Stderr, "# config changed since last --dump-config: %.1f%% similar\n", similarity*100)
}
