// Package core wires the worker supervisor, the message router and the widget
// registry into the host control surface.
package core

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pkt.systems/ascart/internal/eventbus"
	"pkt.systems/ascart/internal/logx"
	"pkt.systems/ascart/internal/persist"
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/internal/worker"
	"pkt.systems/ascart/schema"
	"pkt.systems/pslog"
)

type bridge struct {
	cfg     schema.BridgeConfig
	worker  Worker
	router  *eventbus.Router
	widgets *widget.Registry
	scratch *persist.ScratchStore
	history historyTracker
	logger  pslog.Logger

	closeOnce sync.Once
	closeErr  error
}

var now = time.Now

// NewBridge constructs the bridge. The worker is not spawned until Start.
func NewBridge(cfg schema.BridgeConfig, deps BridgeDeps) (Bridge, error) {
	normalized, err := schema.NormalizeBridgeConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := logx.Or(deps.Logger)
	if deps.Worker == nil {
		deps.Worker = worker.New(worker.Config{
			BinaryPath:      cfg.WorkerBinary,
			Args:            cfg.WorkerArgs,
			Env:             cfg.WorkerEnv,
			Dir:             cfg.WorkerDir,
			StopGrace:       cfg.StopGrace,
			MaxLineBytes:    cfg.MaxLineBytes,
			ReadBufferBytes: cfg.ReadBufferBytes,
		}, logger)
	}
	scratch, err := persist.NewScratchStoreWithLogger(cfg.ScratchDir, logger)
	if err != nil {
		return nil, err
	}
	b := &bridge{
		cfg:     cfg,
		worker:  deps.Worker,
		scratch: scratch,
		logger:  logger,
	}
	b.router = eventbus.New(deps.Worker, logger)
	b.widgets = widget.NewRegistry(widget.RegistryConfig{
		Policy:      cfg.Policy,
		FontSize:    cfg.FontSize,
		MinFontSize: cfg.MinFontSize,
		MaxFontSize: cfg.MaxFontSize,
		Autoplay:    cfg.Autoplay,
		Clock:       deps.Clock,
	}, deps.Surfaces, scratch, logger)
	deps.Worker.OnMessage(b.onMessage)
	deps.Worker.OnStateChange(b.onState)
	return b, nil
}

func (b *bridge) onMessage(msg schema.Message) {
	b.history.observe(msg)
	if msg.Kind == schema.MessageError {
		b.logger.Warn("worker reported error", "detail", msg.Detail)
	}
	b.router.Dispatch(msg)
}

func (b *bridge) onState(state schema.ProcessState) {
	if !state.Live() {
		b.history.reset()
	}
	b.router.PublishState(state)
}

func (b *bridge) Start(ctx context.Context) error {
	if b.cfg.SweepOnStart {
		if removed, err := b.scratch.Sweep(); err != nil {
			b.logger.Warn("scratch sweep failed", "removed", removed, "err", err)
		}
	}
	return b.worker.Start(ctx)
}

// Close dismisses every widget and stops the worker. Later calls return the
// first result.
func (b *bridge) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		closed := b.widgets.CloseAll(ctx)
		b.logger.Info("bridge closing", "widgets", closed)
		b.closeErr = b.worker.Stop(ctx)
	})
	return b.closeErr
}

func (b *bridge) WorkerState() schema.ProcessState {
	return b.worker.State()
}

func (b *bridge) Available() bool {
	return b.worker.State().Phase == schema.PhaseRunning
}

func (b *bridge) SubmitConvert(ctx context.Context, path string, opts schema.ConvertOptions) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: convert path is required", schema.ErrInvalidRequest)
	}
	return b.router.Submit(ctx, schema.ConvertCommand{Path: path, Options: opts})
}

func (b *bridge) SubmitSave(ctx context.Context, ascii, filename string, format schema.SaveFormat) error {
	if format == "" {
		format = schema.SaveText
	}
	if format != schema.SaveText && format != schema.SaveHTML {
		return fmt.Errorf("%w: unsupported save format %q", schema.ErrInvalidRequest, format)
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = fmt.Sprintf("ascii_art_%d.%s", now().Unix(), format)
	}
	if filepath.Base(filename) != filename {
		return fmt.Errorf("%w: save filename must not contain a directory: %q", schema.ErrInvalidRequest, filename)
	}
	return b.router.Submit(ctx, schema.SaveCommand{ASCII: ascii, Filename: filename, Format: format})
}

func (b *bridge) RequestHistory(ctx context.Context) error {
	b.history.requested()
	if err := b.router.Submit(ctx, schema.GetHistoryCommand{}); err != nil {
		b.history.unsent()
		return err
	}
	return nil
}

// DeleteHistoryAt deletes by position. The index must come from a list that
// no earlier delete has invalidated; the bridge refreshes the list after each
// delete and rejects further deletes with schema.ErrStaleHistory until the
// refreshed list arrives. Lists answering earlier requests do not count.
func (b *bridge) DeleteHistoryAt(ctx context.Context, index int) error {
	if err := b.history.claim(index); err != nil {
		return err
	}
	if err := b.router.Submit(ctx, schema.DeleteHistoryCommand{Index: index}); err != nil {
		b.history.release()
		return err
	}
	if err := b.router.Submit(ctx, schema.GetHistoryCommand{}); err != nil {
		b.history.unsent()
		return err
	}
	return nil
}

func (b *bridge) History() ([]schema.HistoryEntry, bool) {
	return b.history.snapshot()
}

func (b *bridge) Ping(ctx context.Context) error {
	return b.router.Submit(ctx, schema.PingCommand{})
}

func (b *bridge) OpenPresentation(ctx context.Context, payload schema.PresentationPayload) (schema.WidgetID, error) {
	return b.widgets.Open(ctx, payload)
}

func (b *bridge) PresentResult(ctx context.Context, msg schema.Message) (schema.WidgetID, error) {
	payload, err := schema.PayloadFromMessage(msg)
	if err != nil {
		return "", err
	}
	return b.widgets.Open(ctx, payload)
}

func (b *bridge) ClosePresentation(ctx context.Context, id schema.WidgetID) bool {
	return b.widgets.Close(ctx, id)
}

func (b *bridge) RelocatePresentation(id schema.WidgetID, dx, dy int) error {
	return b.widgets.Relocate(id, dx, dy)
}

func (b *bridge) ControlPresentation(id schema.WidgetID, action schema.WidgetAction) (schema.WidgetSnapshot, error) {
	return b.widgets.Control(id, action)
}

func (b *bridge) Presentations() []schema.WidgetSnapshot {
	return b.widgets.List()
}

func (b *bridge) OnBackendMessage(handler func(schema.Message)) func() {
	return b.router.Subscribe(handler)
}

func (b *bridge) OnWorkerState(handler func(schema.ProcessState)) func() {
	return b.router.WatchState(handler)
}
