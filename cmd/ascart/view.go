package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart"
	"pkt.systems/ascart/core"
	"pkt.systems/ascart/internal/tui"
	"pkt.systems/pslog"
)

func newViewCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	var logFile string
	var theme string
	var flags convertFlags
	cmd := &cobra.Command{
		Use:   "view <image-or-gif>",
		Short: "Convert an image or GIF and present it in a terminal widget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("theme") {
				cfg.Widgets.Theme = theme
			}
			themeName, err := tui.ParseTheme(cfg.Widgets.Theme)
			if err != nil {
				return err
			}
			// The terminal belongs to the widget while it runs.
			var logOut io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				logOut = f
			}
			logger := pslog.NewWithOptions(logOut, pslog.Options{Mode: pslog.ModeStructured, NoColor: true, MinLevel: pslog.DebugLevel})
			ctx = pslog.ContextWithLogger(ctx, logger)

			screen := tui.NewScreen(logger)
			srv, err := ascart.New(ascart.ServerConfig{Bridge: cfg.BridgeConfig()}, ascart.ServerDeps{
				BridgeDeps: core.BridgeDeps{Logger: logger},
			}, ascart.WithTerminal(screen))
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
				defer cancel()
				_ = srv.Stop(stopCtx)
			}()

			bridge := srv.Bridge()
			result, err := convertOnce(ctx, bridge, timeout, args[0], flags.options(cmd, cfg.Convert))
			if err != nil {
				return err
			}
			if _, err := bridge.PresentResult(ctx, result); err != nil {
				return err
			}
			return tui.Run(ctx, screen, bridge, tui.Options{
				Title:         filepath.Base(args[0]),
				Theme:         themeName,
				QuitWhenEmpty: true,
			})
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the worker")
	cmd.Flags().StringVar(&theme, "theme", "", "terminal palette: "+strings.Join(tui.Themes(), ", "))
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs here while the widget owns the terminal")
	flags.register(cmd)
	return cmd
}
