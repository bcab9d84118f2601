package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rusty-ci/rusty-tui/internal/config"
	"github.com/rusty-ci/rusty-tui/internal/tui"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "rusty-tui",
		Short:         "Terminal client for Rusty CI",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := setup(cmd, configPath, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			app := tui.NewApp(rt.cfg, rt.client, rt.subs, rt.logCache)
			p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			app.Attach(p)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("run tui: %w", err)
			}
			return nil
		},
	}
	root.SetVersionTemplate("rusty-tui {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")
	flags.String("endpoint", "", "GraphQL query endpoint")
	flags.String("ws-url", "", "GraphQL subscription websocket URL")
	flags.String("token", "", "bearer token (prefer RUSTY_TOKEN)")
	flags.Duration("ack-timeout", 0, "time to wait for connection_ack")
	flags.Duration("request-timeout", 0, "query request timeout")
	flags.String("reconnect", "", "reconnect strategy: constant or exponential")
	flags.Duration("reconnect-delay", 0, "delay before reconnecting")
	flags.String("cache-dir", "", "log cache directory")
	flags.Int("cache-size", 0, "max log cache size in MB")
	flags.Duration("cache-ttl", 0, "log cache TTL")
	flags.String("log-file", "", "log file, rotated")
	flags.String("log-level", "", "log level")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(newWatchCmd(&configPath))
	root.AddCommand(newLogsCmd(&configPath))
	root.AddCommand(newConfigCmd())
	root.AddCommand(newCacheCmd(&configPath))
	root.AddCommand(newLoginCmd(&configPath))
	root.AddCommand(newAccountCmd(&configPath))
	return root
}
