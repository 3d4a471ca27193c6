package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/ascart/core"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

func newConvertCmd() *cobra.Command {
	var cfgPath string
	var timeout time.Duration
	var allFrames bool
	var saveAs string
	var saveFormat string
	var flags convertFlags
	cmd := &cobra.Command{
		Use:   "convert <image-or-gif>",
		Short: "Convert an image or GIF and print the text-art",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, cfgPath)
			if err != nil {
				return err
			}
			bridge, err := startBridge(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeBridge(ctx, bridge)

			result, err := convertOnce(ctx, bridge, timeout, args[0], flags.options(cmd, cfg.Convert))
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), result, allFrames); err != nil {
				return err
			}
			if saveAs == "" && !cmd.Flags().Changed("format") {
				return nil
			}
			reply, err := saveResult(ctx, bridge, timeout, result, saveAs, schema.SaveFormat(saveFormat))
			if err != nil {
				return err
			}
			pslog.Ctx(ctx).Info("text-art saved", "path", reply.FilePath, "message", reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config path (default ~/.ascart/config.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultReplyTimeout, "how long to wait for the worker")
	cmd.Flags().BoolVar(&allFrames, "frames", false, "print every GIF frame instead of the first")
	cmd.Flags().StringVar(&saveAs, "save", "", "also save the result under this file name")
	cmd.Flags().StringVar(&saveFormat, "format", string(schema.SaveText), "save format: txt or html")
	flags.register(cmd)
	return cmd
}

func convertOnce(ctx context.Context, bridge core.Bridge, timeout time.Duration, path string, opts schema.ConvertOptions) (schema.Message, error) {
	pslog.Ctx(ctx).Info("convert start", "path", path, "width", opts.Width, "charset", opts.Charset)
	return awaitReply(ctx, bridge, timeout, func(ctx context.Context) error {
		return bridge.SubmitConvert(ctx, path, opts)
	}, isResult)
}

func saveResult(ctx context.Context, bridge core.Bridge, timeout time.Duration, result schema.Message, filename string, format schema.SaveFormat) (schema.Message, error) {
	art := resultArt(result)
	return awaitReply(ctx, bridge, timeout, func(ctx context.Context) error {
		return bridge.SubmitSave(ctx, art, filename, format)
	}, isStatus)
}

// resultArt is the text a save request carries: the art, or the first frame.
func resultArt(msg schema.Message) string {
	if msg.Kind == schema.MessageGIFResult {
		if len(msg.Frames) == 0 {
			return ""
		}
		return msg.Frames[0]
	}
	return msg.ASCII
}

func printResult(w io.Writer, msg schema.Message, allFrames bool) error {
	switch msg.Kind {
	case schema.MessageASCIIResult:
		_, err := fmt.Fprintln(w, strings.TrimRight(msg.ASCII, "\n"))
		return err
	case schema.MessageGIFResult:
		if len(msg.Frames) == 0 {
			return errors.New("worker returned a GIF without frames")
		}
		frames := msg.Frames[:1]
		if allFrames {
			frames = msg.Frames
		}
		delays := schema.NormalizeDelays(len(msg.Frames), msg.Delays)
		for i, frame := range frames {
			if allFrames {
				if _, err := fmt.Fprintf(w, "--- frame %d/%d (%dms)\n", i+1, len(msg.Frames), delays[i].Milliseconds()); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, strings.TrimRight(frame, "\n")); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unexpected reply %q", msg.Kind)
	}
}
