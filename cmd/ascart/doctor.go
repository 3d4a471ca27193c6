package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/internal/appconfig"
	"pkt.systems/ascart/internal/persist"
	"pkt.systems/pslog"
)

func newDoctorCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the worker setup with a ping round trip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			configPath := cfgPath
			if strings.TrimSpace(configPath) == "" {
				path, err := appconfig.DefaultConfigPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			logger.Info("doctor start", "config", configPath)

			out := cmd.OutOrStdout()
			checks := []struct {
				name string
				run  func() (string, error)
			}{
				{name: "worker binary", run: func() (string, error) { return exec.LookPath(cfg.Worker.Binary) }},
				{name: "worker dir", run: func() (string, error) { return checkDir(cfg.Worker.Dir) }},
				{name: "scratch dir", run: func() (string, error) { return checkScratch(cfg.Widgets.ScratchDir) }},
				{name: "worker ping", run: func() (string, error) { return pingWorker(ctx, cfg, timeout) }},
			}
			var failed []string
			for _, check := range checks {
				detail, err := check.run()
				if err != nil {
					failed = append(failed, check.name)
					_, _ = fmt.Fprintf(out, "FAIL %-14s %v\n", check.name, err)
					logger.Warn("doctor check failed", "check", check.name, "err", err)
					continue
				}
				_, _ = fmt.Fprintf(out, "ok   %-14s %s\n", check.name, detail)
			}
			if len(failed) > 0 {
				return fmt.Errorf("doctor failed: %s", strings.Join(failed, ", "))
			}
			logger.Info("doctor ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "ping timeout")
	return cmd
}

func checkDir(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "(inherit current directory)", nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return dir, nil
}

func checkScratch(dir string) (string, error) {
	store, err := persist.NewScratchStore(dir)
	if err != nil {
		return "", err
	}
	path, err := store.Write("doctor", []byte("ok"))
	if err != nil {
		return "", err
	}
	if err := store.Remove("doctor"); err != nil {
		return "", err
	}
	return path + " (writable)", nil
}

func pingWorker(ctx context.Context, cfg appconfig.Config, timeout time.Duration) (string, error) {
	bridge, err := startBridge(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer closeBridge(ctx, bridge)
	start := time.Now()
	reply, err := awaitReply(ctx, bridge, timeout, bridge.Ping, isStatus)
	if err != nil {
		return "", err
	}
	if reply.Text == "" {
		return "", errors.New("worker answered ping without a message")
	}
	state := bridge.WorkerState()
	return fmt.Sprintf("%q in %s (pid %d)", reply.Text, time.Since(start).Round(time.Millisecond), state.PID), nil
}
