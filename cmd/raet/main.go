// Raet: CLI entry point.
//
// raet runs a road estate over UDP, a lane yard over a unix datagram socket,
// or a road over a WebRTC DataChannel brought up through WebSocket
// signaling. Lines typed on stdin are sent as messages ("@name text" picks
// the destination); received messages are logged.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/raet/internal/config"
	"github.com/1ureka/raet/internal/util"
)

var version = "dev"

var (
	cfgFile     string
	debugMode   bool
	metricsAddr string
	keeperPath  string
)

var rootCmd = &cobra.Command{
	Use:           "raet",
	Short:         "Reliable asynchronous event transport over UDP, unix sockets and WebRTC",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default ./raet.yaml or ~/.raet/raet.yaml)")
	pf.BoolVar(&debugMode, "debug", false, "enable debug logging")
	pf.StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address, e.g. :9090")
	pf.StringVar(&keeperPath, "keep", "", "persist identity and remotes in this directory")
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration, applying the global flags and the
// command specific overrides, then sets up logging.
func loadConfig(overrides map[string]any) (*config.Config, io.Closer, error) {
	if overrides == nil {
		overrides = make(map[string]any)
	}
	if debugMode {
		overrides["log.debug"] = true
	}
	if metricsAddr != "" {
		overrides["metrics.addr"] = metricsAddr
	}
	if keeperPath != "" {
		overrides["keeper.path"] = keeperPath
	}

	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Debug {
		util.EnableDebug()
	}
	closer := util.SetLogFile(cfg.Log.LogFile())

	pterm.Info.Println(fmt.Sprintf("raet v%s", version))
	pterm.Println()
	return cfg, closer, nil
}

// setIf records a flag override only when the flag was given.
func setIf(cmd *cobra.Command, overrides map[string]any, flag, key string, value any) {
	if cmd.Flags().Changed(flag) {
		overrides[key] = value
	}
}
