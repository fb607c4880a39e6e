package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/raet/internal/app"
	"github.com/1ureka/raet/internal/signaling"
	"github.com/1ureka/raet/internal/util"
)

var rtcFlags struct {
	name   string
	uid    uint32
	listen string
	pin    bool
}

var rtcCmd = &cobra.Command{
	Use:   "rtc [host | client <ws-url>]",
	Short: "Run a road over a WebRTC DataChannel",
	Long: `Run a road estate whose peer is reached over a WebRTC DataChannel.

The host serves WebSocket signaling and waits for one client; the client
dials the host's URL. Both sides announce their estate during signaling, so
no peer configuration is needed. Each side needs its own uid.

Without arguments the role is asked interactively.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, wsURL, err := rtcRole(args)
		if err != nil {
			return err
		}

		overrides := make(map[string]any)
		setIf(cmd, overrides, "name", "road.name", rtcFlags.name)
		setIf(cmd, overrides, "uid", "road.uid", rtcFlags.uid)
		setIf(cmd, overrides, "listen", "rtc.listen", rtcFlags.listen)
		if host && rtcFlags.pin {
			overrides["rtc.pin"] = signaling.GeneratePIN(4)
		}

		cfg, closer, err := loadConfig(overrides)
		if err != nil {
			return err
		}
		defer closer.Close()

		if err := app.RunRTC(cmd.Context(), cfg, host, wsURL, cmd.InOrStdin()); err != nil {
			return err
		}
		util.LogInfo("successfully closed rtc road")
		return nil
	},
}

func init() {
	f := rtcCmd.Flags()
	f.StringVar(&rtcFlags.name, "name", "", "estate name")
	f.Uint32Var(&rtcFlags.uid, "uid", 0, "estate uid")
	f.StringVar(&rtcFlags.listen, "listen", "", "host: WebSocket listen address, e.g. 127.0.0.1:8080")
	f.BoolVar(&rtcFlags.pin, "pin", false, "host: require a random 4 digit PIN from the client")
	rootCmd.AddCommand(rtcCmd)
}

// rtcRole resolves the role from args, falling back to interactive prompts
// when none is given.
func rtcRole(args []string) (host bool, wsURL string, err error) {
	if len(args) == 0 {
		return askRole()
	}
	switch args[0] {
	case "host":
		if len(args) > 1 {
			return false, "", errors.New("host takes no URL")
		}
		return true, "", nil
	case "client":
		if len(args) < 2 {
			return false, "", errors.New("missing WebSocket URL for client role")
		}
		wsURL, err := normalizeWSURL(args[1])
		return false, wsURL, err
	default:
		return false, "", fmt.Errorf("invalid role %q: must be 'host' or 'client'", args[0])
	}
}

func askRole() (bool, string, error) {
	role, err := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host   - Wait for a peer", "Client - Connect to a host"}).
		WithDefaultText("Select your role").
		Show()
	if err != nil {
		return false, "", err
	}
	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		return true, "", nil
	}
	return false, askURL(), nil
}

// normalizeWSURL validates a WebSocket URL, defaulting the scheme to wss
// and the path to /ws. The query, which may carry the PIN, is kept.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	u.Fragment = ""
	return u.String(), nil
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("WebSocket URL (e.g. wss://***.devtunnels.ms/ws?pin=1234)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
