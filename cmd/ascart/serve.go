package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pkt.systems/ascart"
	"pkt.systems/ascart/core"
	"pkt.systems/ascart/httpapi"
	"pkt.systems/ascart/internal/appconfig"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

//go:embed assets/banner.txt
var serveBanner string

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var noBanner bool
	var present bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the worker and the HTTP control surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			logMode := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_MODE")))
			showBanner := !noBanner && logMode != "json" && logMode != "structured"
			if showBanner && serveBanner != "" {
				_, _ = fmt.Fprint(cmd.OutOrStdout(), serveBanner)
			}
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.HTTP.Addr = addr
			}

			srv, err := ascart.New(ascart.ServerConfig{
				Bridge: cfg.BridgeConfig(),
				HTTP:   toHTTPConfig(cfg),
			}, ascart.ServerDeps{
				BridgeDeps: core.BridgeDeps{Logger: logger},
			}, ascart.WithHTTP())
			if err != nil {
				return err
			}
			if present {
				bridge := srv.Bridge()
				unsubscribe := bridge.OnBackendMessage(func(msg schema.Message) {
					if !msg.IsResult() {
						return
					}
					if _, err := bridge.PresentResult(ctx, msg); err != nil {
						logger.Warn("present result failed", "err", err)
					}
				})
				defer unsubscribe()
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			logger.Info("ascart serving", "url", serveURL(cfg.HTTP))
			err = srv.Wait()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			if stopErr := srv.Stop(stopCtx); err == nil {
				err = stopErr
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().StringVar(&addr, "addr", "", "override http.addr")
	cmd.Flags().BoolVar(&noBanner, "no-banner", false, "do not print the banner")
	cmd.Flags().BoolVar(&present, "present", false, "open a widget for every conversion result")
	return cmd
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:       cfg.HTTP.Addr,
		BaseURL:    cfg.HTTP.BaseURL,
		BasePath:   cfg.HTTP.BasePath,
		HubHistory: cfg.HTTP.HubHistory,
		Convert:    cfg.Convert,
	}
}

func serveURL(cfg appconfig.HTTPConfig) string {
	path := strings.Trim(strings.TrimSpace(cfg.BasePath), "/")
	if path != "" {
		path += "/"
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		return strings.TrimRight(base, "/") + "/" + path
	}
	host := cfg.Addr
	if strings.HasPrefix(host, ":") {
		host = "127.0.0.1" + host
	}
	return "http://" + host + "/" + path
}
