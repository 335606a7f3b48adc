// Package cli wires the daemon's command-line surface: flag parsing,
// config/overlay loading, component construction, and the two
// diagnostic-only subflags (--dump-config, --watch-config) that never
// touch the running daemon.
package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wozt/goofydeck-sub000/internal/cmdengine"
	"github.com/wozt/goofydeck-sub000/internal/control"
	"github.com/wozt/goofydeck-sub000/internal/crash"
	"github.com/wozt/goofydeck-sub000/internal/daemon"
	"github.com/wozt/goofydeck-sub000/internal/ddconfig"
	"github.com/wozt/goofydeck-sub000/internal/device"
	"github.com/wozt/goofydeck-sub000/internal/dlog"
	"github.com/wozt/goofydeck-sub000/internal/haclient"
	"github.com/wozt/goofydeck-sub000/internal/iconpipe"
	"github.com/wozt/goofydeck-sub000/internal/rendercache"
	"github.com/wozt/goofydeck-sub000/internal/status"
)

// Flags holds every CLI-surface path/option, filled by cobra and threaded
// through to component construction.
type Flags struct {
	ConfigPath   string
	UlanziSock   string
	ControlSock  string
	HASock       string
	CacheRoot    string
	ErrorIcon    string
	SysPregenDir string
	StateDir     string
	MDIDir       string
	OverlayPath  string
	DumpConfig   bool
	WatchConfig  bool
	Debug        bool
}

var flags Flags

var rootCmd = &cobra.Command{
	Use:           "goofydeck",
	Short:         "Paging daemon for a 14-button hardware macro deck",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if flags.DumpConfig {
			return runDumpConfig(flags)
		}
		if flags.WatchConfig {
			return runWatchConfig(cmd.Context(), flags)
		}
		return runDaemon(cmd.Context(), flags)
	},
}

func init() {
	home, _ := os.UserHomeDir()
	defaultConfig := filepath.Join(home, ".config", "goofydeck", "config.yaml")
	defaultState := filepath.Join(home, ".local", "state", "goofydeck")
	defaultCache := filepath.Join(home, ".cache", "goofydeck")

	f := rootCmd.PersistentFlags()
	f.StringVar(&flags.ConfigPath, "config", defaultConfig, "path to config.yaml")
	f.StringVar(&flags.UlanziSock, "ulanzi-sock", "/run/goofydeck/ulanzi.sock", "device service socket path")
	f.StringVar(&flags.ControlSock, "control-sock", filepath.Join(defaultState, "control.sock"), "control socket path")
	f.StringVar(&flags.HASock, "ha-sock", "/run/goofydeck/ha.sock", "home-assistant side-car socket path")
	f.StringVar(&flags.CacheRoot, "cache", defaultCache, "persistent render cache root")
	f.StringVar(&flags.ErrorIcon, "error-icon", "", "fallback tile path substituted for a failed render")
	f.StringVar(&flags.SysPregenDir, "sys-pregen-dir", "", "directory of pre-generated system label-style assets")
	f.StringVar(&flags.OverlayPath, "overlay", filepath.Join(filepath.Dir(defaultConfig), "goofydeck.toml"), "optional machine-local TOML override file")
	f.BoolVar(&flags.DumpConfig, "dump-config", false, "print the fully-defaulted config as YAML and exit")
	f.BoolVar(&flags.WatchConfig, "watch-config", false, "report config file changes without reloading, then exit on signal")
	f.BoolVar(&flags.Debug, "debug", false, "verbose logging, disables the single-line status overwrite")

	flags.StateDir = defaultState
	flags.MDIDir = filepath.Join(defaultCache, "mdi")
}

// Execute runs the root command.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

// deviceDialer builds the Dialer the daemon package uses for its
// separate event-subscription connection (distinct from the
// one-request-per-command device.Client dialer built into NewClient).
func deviceDialer(path string) device.Dialer {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", path)
	}
}

// runDaemon loads configuration, constructs every component, and runs
// the event loop until ctx is canceled (SIGINT/SIGTERM) or a fatal init
// error occurs.
func runDaemon(ctx context.Context, f Flags) error {
	logger := dlog.New(f.Debug)
	statusLine := status.New(os.Stderr, f.Debug, logger)

	cfg, err := ddconfig.Load(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	overlay, err := ddconfig.LoadOverlay(f.OverlayPath)
	if err != nil {
		logger.WarnOnce("overlay", "overlay load failed, ignoring: %v", err)
	} else {
		overlay.Apply(cfg)
	}

	crashHandler := crash.Install(os.Stderr)
	defer crashHandler.Stop()

	dev := device.NewClient(f.UlanziSock, device.DefaultDebounce)

	var ha *haclient.Client
	if f.HASock != "" {
		ha = haclient.NewClient(f.HASock)
	}

	cmdTimeout := time.Duration(cfg.CmdTimeoutMs) * time.Millisecond
	cmd := cmdengine.NewEngine(cmdTimeout)
	cmd.Start(ctx)
	defer cmd.Stop()

	store := rendercache.NewStore(f.CacheRoot, f.StateDir)
	pipeline := iconpipe.NewPipeline(iconpipe.DefaultRunner, 5*time.Second, store, f.MDIDir)

	paths := daemon.Paths{
		CacheRoot:    f.CacheRoot,
		StateDir:     f.StateDir,
		ErrorIcon:    f.ErrorIcon,
		SysPregenDir: f.SysPregenDir,
	}
	d := daemon.New(cfg, paths, logger, statusLine, dev, deviceDialer(f.UlanziSock), ha, cmd, store)
	d.AttachPipeline(pipeline)

	surface, err := control.Listen(f.ControlSock, d, logger)
	if err != nil {
		return fmt.Errorf("control socket: %w", err)
	}
	defer surface.Close()
	d.AttachControl(surface)

	if err := d.LoadLastPage(); err != nil {
		logger.WarnOnce("startup-render", "initial render failed: %v", err)
	}

	return d.Run(ctx)
}
