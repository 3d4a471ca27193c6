package widget

import "pkt.systems/ascart/schema"

// Surface renders one widget session. Sessions call it while holding their
// own lock, so implementations must not block and must not call back into
// the session.
type Surface interface {
	Update(schema.WidgetSnapshot)
	Move(dx, dy int)
	Dismiss()
}

// SurfaceFactory opens a surface for a new session. scratchPath is the
// session's rendered document, or empty when no scratch store is configured.
type SurfaceFactory interface {
	Open(id schema.WidgetID, scratchPath string) (Surface, error)
}

type nopSurface struct{}

func (nopSurface) Update(schema.WidgetSnapshot) {}
func (nopSurface) Move(int, int)                {}
func (nopSurface) Dismiss()                     {}
