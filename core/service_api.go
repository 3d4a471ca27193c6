package core

import (
	"context"

	"pkt.systems/ascart/schema"
)

// Bridge is the host-side control surface over the worker and its widgets.
type Bridge interface {
	Start(ctx context.Context) error
	Close(ctx context.Context) error
	WorkerState() schema.ProcessState
	Available() bool

	SubmitConvert(ctx context.Context, path string, opts schema.ConvertOptions) error
	SubmitSave(ctx context.Context, ascii, filename string, format schema.SaveFormat) error
	RequestHistory(ctx context.Context) error
	DeleteHistoryAt(ctx context.Context, index int) error
	History() ([]schema.HistoryEntry, bool)
	Ping(ctx context.Context) error

	OpenPresentation(ctx context.Context, payload schema.PresentationPayload) (schema.WidgetID, error)
	PresentResult(ctx context.Context, msg schema.Message) (schema.WidgetID, error)
	ClosePresentation(ctx context.Context, id schema.WidgetID) bool
	RelocatePresentation(id schema.WidgetID, dx, dy int) error
	ControlPresentation(id schema.WidgetID, action schema.WidgetAction) (schema.WidgetSnapshot, error)
	Presentations() []schema.WidgetSnapshot

	OnBackendMessage(handler func(schema.Message)) func()
	OnWorkerState(handler func(schema.ProcessState)) func()
}

// Worker is the process the bridge talks to.
type Worker interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, cmd schema.Command) error
	State() schema.ProcessState
	OnMessage(fn func(schema.Message))
	OnStateChange(fn func(schema.ProcessState))
}
