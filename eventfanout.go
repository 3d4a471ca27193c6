package ascart

import (
	"pkt.systems/ascart/internal/widget"
	"pkt.systems/ascart/schema"
)

// surfaceFanout presents every widget on each of its factories.
type surfaceFanout struct {
	factories []widget.SurfaceFactory
}

func (f surfaceFanout) Open(id schema.WidgetID, scratchPath string) (widget.Surface, error) {
	opened := make(multiSurface, 0, len(f.factories))
	for _, factory := range f.factories {
		if factory == nil {
			continue
		}
		surface, err := factory.Open(id, scratchPath)
		if err != nil {
			opened.Dismiss()
			return nil, err
		}
		opened = append(opened, surface)
	}
	return opened, nil
}

type multiSurface []widget.Surface

func (m multiSurface) Update(snapshot schema.WidgetSnapshot) {
	for _, surface := range m {
		surface.Update(snapshot)
	}
}

func (m multiSurface) Move(dx, dy int) {
	for _, surface := range m {
		surface.Move(dx, dy)
	}
}

func (m multiSurface) Dismiss() {
	for _, surface := range m {
		surface.Dismiss()
	}
}
