package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/cdpgate/internal/infrastructure/server"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type cliFlags struct {
	host          string
	port          string
	tunnelHost    string
	tunnelScheme  string
	mode          string
	browserHost   string
	debugPort     int
	headless      bool
	browserBin    string
	launchOnStart bool
	pageTimeoutMS int
	logLevel      string
	dev           bool
}

var flags cliFlags

var rootCmd = &cobra.Command{
	Use:   "cdpgate",
	Short: "Tunnel-reachable Chrome DevTools Protocol gateway",
	Long: `cdpgate supervises a single headless browser and exposes its DevTools
endpoint through a public tunnel.

GET /cdp launches the browser on demand and returns a wsEndpoint rewritten
for the tunnel host. WebSocket sessions on /devtools/* are relayed to the
browser's loopback debug port. Pages older than PAGE_TIMEOUT_MS are closed.

Configuration comes from the environment; flags override it.`,
	SilenceUsage: true,
	RunE:         runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration and print the effective endpoint settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, &flags)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "listen:       %s\n", cfg.Addr())
		fmt.Fprintf(out, "mode:         %s\n", cfg.Tunnel.Mode)
		fmt.Fprintf(out, "public host:  %s://%s\n", cfg.Tunnel.Scheme, cfg.PublicHost())
		fmt.Fprintf(out, "debug port:   %d\n", cfg.Browser.DebugPort)
		fmt.Fprintf(out, "page max age: %s\n", cfg.Pages.MaxAge())
		return nil
	},
}

func init() {
	registerFlags(rootCmd, &flags)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func registerFlags(cmd *cobra.Command, f *cliFlags) {
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.host, "host", "", "Listen host (HOST)")
	pf.StringVar(&f.port, "port", "", "Listen port (PORT)")
	pf.StringVar(&f.tunnelHost, "tunnel-host", "", "External tunnel hostname (TUNNEL_HOST)")
	pf.StringVar(&f.tunnelScheme, "tunnel-scheme", "", "External WebSocket scheme, ws or wss (TUNNEL_SCHEME)")
	pf.StringVar(&f.mode, "mode", "", "Endpoint mode, relay or direct (ENDPOINT_MODE)")
	pf.StringVar(&f.browserHost, "browser-tunnel-host", "", "Host used in direct mode (BROWSER_TUNNEL_HOST)")
	pf.IntVar(&f.debugPort, "debug-port", 0, "Browser remote debugging port (DEBUG_PORT)")
	pf.BoolVar(&f.headless, "headless", true, "Run the browser headless (HEADLESS)")
	pf.StringVar(&f.browserBin, "browser-bin", "", "Browser executable (BROWSER_BIN)")
	pf.BoolVar(&f.launchOnStart, "launch-on-start", false, "Launch the browser at startup (BROWSER_LAUNCH_ON_START)")
	pf.IntVar(&f.pageTimeoutMS, "page-timeout-ms", 0, "Maximum page age in milliseconds (PAGE_TIMEOUT_MS)")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error (LOG_LEVEL)")
	pf.BoolVar(&f.dev, "dev", false, "Development logging (LOG_DEV)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies flags the user set and
// validates the result.
func loadConfig(cmd *cobra.Command, f *cliFlags) (*config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, f *cliFlags, cfg *config.Config) {
	set := cmd.Flags().Changed

	if set("host") {
		cfg.Server.Host = f.host
	}
	if set("port") {
		cfg.Server.Port = f.port
	}
	if set("tunnel-host") {
		cfg.Tunnel.Host = f.tunnelHost
	}
	if set("tunnel-scheme") {
		cfg.Tunnel.Scheme = f.tunnelScheme
	}
	if set("mode") {
		cfg.Tunnel.Mode = f.mode
	}
	if set("browser-tunnel-host") {
		cfg.Tunnel.BrowserHost = f.browserHost
	}
	if set("debug-port") {
		cfg.Browser.DebugPort = f.debugPort
	}
	if set("headless") {
		cfg.Browser.Headless = f.headless
	}
	if set("browser-bin") {
		cfg.Browser.Bin = f.browserBin
	}
	if set("launch-on-start") {
		cfg.Browser.LaunchOnStart = f.launchOnStart
	}
	if set("page-timeout-ms") {
		cfg.Pages.TimeoutMS = f.pageTimeoutMS
	}
	if set("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if set("dev") {
		cfg.Logging.Development = f.dev
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, &flags)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting cdpgate", zap.String("version", version))

	srv, err := server.NewServer(cfg, logger, server.WithVersion(version))
	if err != nil {
		logger.Error("Failed to create server", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	return nil
}
