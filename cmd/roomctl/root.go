package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dkeye/Huddle/internal/client"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/recovery"
)

var (
	flagConfig  string
	flagServer  string
	flagTimeout time.Duration
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "roomctl",
	Short: "Operator tool for a Huddle server",
	Long: `roomctl talks to a Huddle server over its signaling websocket and REST API.

Examples:
  roomctl create yoga-101
  roomctl watch yoga-101 --name observer
  roomctl rooms`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			setVerbose()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "config file for client settings (default config/config.<CONFIG_ENV>.yaml)")
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "http://localhost:8080", "server base URL")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(createCmd, watchCmd, roomsCmd)
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// signalURL turns the server base URL into the websocket endpoint.
func signalURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/ws/signal"
	return u.String(), nil
}

func dial(ctx context.Context) (*client.Conn, error) {
	wsURL, err := signalURL(flagServer)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, flagTimeout)
	defer cancel()
	return client.Dial(dctx, wsURL, client.Options{})
}

// recoveryConfig reads the recovery section of the config file.
func recoveryConfig() (recovery.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flagConfig != "" {
		cfg, err = config.LoadFile(flagConfig)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return recovery.Config{}, err
	}
	return cfg.Recovery.Controller(), nil
}
