package httpapi

import "pkt.systems/ascart/schema"

// Config defines HTTP API and UI settings.
type Config struct {
	Addr       string
	BaseURL    string
	BasePath   string
	HubHistory int
	// Convert is applied to convert requests that carry no options.
	Convert schema.ConvertOptions
}
