package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultFlagsAreConsistent(t *testing.T) {
	if flags.ConfigPath == "" {
		t.Fatal("default ConfigPath must not be empty")
	}
	if flags.StateDir == "" {
		t.Fatal("default StateDir must not be empty")
	}
	if flags.MDIDir == "" {
		t.Fatal("default MDIDir must not be empty")
	}
	if filepath.Base(flags.MDIDir) != "mdi" {
		t.Errorf("MDIDir %q should end in a mdi/ directory", flags.MDIDir)
	}
	if flags.OverlayPath == "" {
		t.Fatal("default OverlayPath must not be empty")
	}
	if filepath.Dir(flags.OverlayPath) != filepath.Dir(flags.ConfigPath) {
		t.Errorf("OverlayPath %q should sit next to ConfigPath %q by default", flags.OverlayPath, flags.ConfigPath)
	}
}

func TestRootCommandRegistersDiagnosticFlags(t *testing.T) {
	for _, name := range []string{"dump-config", "watch-config", "debug", "config", "ulanzi-sock", "control-sock", "ha-sock", "cache", "error-icon", "sys-pregen-dir", "overlay"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("expected persistent flag %q to be registered", name)
		}
	}
}

func TestDeviceDialerDialsGivenPath(t *testing.T) {
	path := "/tmp/does-not-need-to-exist-for-this-check.sock"
	dialer := deviceDialer(path)
	if dialer == nil {
		t.Fatal("deviceDialer returned a nil Dialer")
	}
	conn, err := dialer(context.Background())
	if err == nil {
		conn.Close()
		t.Fatal("expected dialing a missing socket to fail")
	}
	if !strings.Contains(err.Error(), path) {
		t.Fatalf("expected dial error to name %s, got %v", path, err)
	}
}
