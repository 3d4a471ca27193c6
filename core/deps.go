package core

import (
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/pslog"
)

// BridgeDeps captures optional dependencies for the bridge.
type BridgeDeps struct {
	// Worker defaults to a supervised child process built from the config.
	Worker   Worker
	Surfaces widget.SurfaceFactory
	Clock    widget.Clock
	Logger   pslog.Logger
}
