package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/internal/appconfig"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

const (
	defaultReplyTimeout = 2 * time.Minute
	stopTimeout         = 10 * time.Second
)

type convertFlags struct {
	width            int
	charset          string
	brightness       int
	contrast         int
	invert           bool
	removeBackground bool
	keepOriginal     bool
	ratio            string
}

func (f *convertFlags) register(cmd *cobra.Command) {
	defaults := schema.DefaultConvertOptions()
	flags := cmd.Flags()
	flags.IntVar(&f.width, "width", 0, fmt.Sprintf("output width in characters (default from config, %d)", defaults.Width))
	flags.StringVar(&f.charset, "charset", "", "character set: detailed, standard, simple, blocks")
	flags.IntVar(&f.brightness, "brightness", 0, "brightness adjustment")
	flags.IntVar(&f.contrast, "contrast", 0, "contrast percentage")
	flags.BoolVar(&f.invert, "invert", false, "invert brightness")
	flags.BoolVar(&f.removeBackground, "remove-background", false, "remove the image background first")
	flags.BoolVar(&f.keepOriginal, "keep-original", false, "keep the original aspect ratio")
	flags.StringVar(&f.ratio, "ratio", "", "target aspect ratio, e.g. 16:9")
}

// options overlays the flags the user set on the configured defaults.
func (f convertFlags) options(cmd *cobra.Command, base schema.ConvertOptions) schema.ConvertOptions {
	flags := cmd.Flags()
	if flags.Changed("width") {
		base.Width = f.width
	}
	if flags.Changed("charset") {
		base.Charset = f.charset
	}
	if flags.Changed("brightness") {
		base.Brightness = f.brightness
	}
	if flags.Changed("contrast") {
		base.Contrast = f.contrast
	}
	if flags.Changed("invert") {
		base.Invert = f.invert
	}
	if flags.Changed("remove-background") {
		base.RemoveBackground = f.removeBackground
	}
	if flags.Changed("keep-original") {
		base.KeepOriginal = f.keepOriginal
	}
	if flags.Changed("ratio") {
		ratio := strings.TrimSpace(f.ratio)
		if ratio == "" {
			base.Ratio = nil
		} else {
			base.Ratio = &ratio
		}
	}
	return base
}

func loadConfig(ctx context.Context, path string) (appconfig.Config, error) {
	cfg, err := appconfig.Load(path)
	if err != nil {
		return appconfig.Config{}, err
	}
	pslog.Ctx(ctx).Debug("config loaded", "path", path, "worker", cfg.Worker.Binary)
	return cfg, nil
}

// startBridge spawns the worker for a one-shot command. The caller closes
// the bridge.
func startBridge(ctx context.Context, cfg appconfig.Config) (core.Bridge, error) {
	bridgeCfg := cfg.BridgeConfig()
	bridgeCfg.SweepOnStart = false
	bridge, err := core.NewBridge(bridgeCfg, core.BridgeDeps{Logger: pslog.Ctx(ctx)})
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	return bridge, nil
}

func closeBridge(ctx context.Context, bridge core.Bridge) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	if err := bridge.Close(stopCtx); err != nil {
		pslog.Ctx(ctx).Warn("bridge close failed", "err", err)
	}
}

var errWorkerStopped = errors.New("worker stopped before replying")

// awaitReply subscribes, runs send, then waits for the first message accepted
// by match. Worker error replies and worker exit end the wait with an error.
func awaitReply(ctx context.Context, bridge core.Bridge, timeout time.Duration, send func(context.Context) error, match func(schema.Message) bool) (schema.Message, error) {
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	replies := make(chan schema.Message, 16)
	stopped := make(chan struct{}, 1)
	unsubscribe := bridge.OnBackendMessage(func(msg schema.Message) {
		if msg.Kind != schema.MessageError && !match(msg) {
			return
		}
		select {
		case replies <- msg:
		default:
		}
	})
	defer unsubscribe()
	unwatch := bridge.OnWorkerState(func(state schema.ProcessState) {
		if !state.Live() {
			select {
			case stopped <- struct{}{}:
			default:
			}
		}
	})
	defer unwatch()

	if err := send(ctx); err != nil {
		return schema.Message{}, err
	}
	select {
	case msg := <-replies:
		if msg.Kind == schema.MessageError {
			return schema.Message{}, fmt.Errorf("worker error: %s", msg.Detail)
		}
		return msg, nil
	case <-stopped:
		return schema.Message{}, errWorkerStopped
	case <-ctx.Done():
		return schema.Message{}, fmt.Errorf("waiting for worker reply: %w", ctx.Err())
	}
}

func isResult(msg schema.Message) bool {
	return msg.IsResult()
}

func isHistory(msg schema.Message) bool {
	return msg.Kind == schema.MessageHistoryList
}

func isStatus(msg schema.Message) bool {
	return msg.Kind == schema.MessageStatus
}
