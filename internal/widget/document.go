package widget

import (
	"bytes"
	_ "embed"
	"html/template"

	"pkt.systems/ascart/schema"
)

//go:embed document.tmpl
var documentSource string

var documentTemplate = template.Must(template.New("widget").Parse(documentSource))

type documentData struct {
	schema.WidgetSnapshot
	EventsURL  string
	ControlURL string
}

// RenderDocument renders the standalone HTML document for a widget. The
// document shows the snapshot and, when served from /widgets/{id}, follows
// the widget's event stream. Links are relative so a base path survives.
func RenderDocument(snapshot schema.WidgetSnapshot) ([]byte, error) {
	data := documentData{
		WidgetSnapshot: snapshot,
		EventsURL:      string(snapshot.ID) + "/events",
		ControlURL:     "../api/widgets/" + string(snapshot.ID),
	}
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
