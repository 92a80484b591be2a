// Package provider catalogs the transcription backends the application can
// talk to and their endpoints.
package provider

import "sort"

// EndpointConfig holds HTTP/WebSocket endpoint configuration
type EndpointConfig struct {
	BaseURL string // e.g., "https://api.openai.com" or "wss://api.deepgram.com"
	Path    string // e.g., "/v1/listen"
}

// Provider describes one transcription backend.
type Provider struct {
	Name string

	// SupportsStreaming marks backends with a real-time socket endpoint.
	SupportsStreaming bool
	// SupportsBatch marks backends with a prerecorded/upload endpoint.
	SupportsBatch bool

	DefaultModel string

	Streaming   *EndpointConfig // nil when streaming is unsupported
	Prerecorded *EndpointConfig // nil when batch is unsupported
	Keys        *EndpointConfig // ephemeral key issuance, nil when unsupported
}

var registry = map[string]Provider{
	"deepgram": {
		Name:              "deepgram",
		SupportsStreaming: true,
		SupportsBatch:     true,
		DefaultModel:      "nova-2",
		Streaming:         &EndpointConfig{BaseURL: "wss://api.deepgram.com", Path: "/v1/listen"},
		Prerecorded:       &EndpointConfig{BaseURL: "https://api.deepgram.com", Path: "/v1/listen"},
		Keys:              &EndpointConfig{BaseURL: "https://api.deepgram.com", Path: "/v1/projects"},
	},
	"openai": {
		Name:          "openai",
		SupportsBatch: true,
		DefaultModel:  "whisper-1",
		Prerecorded:   &EndpointConfig{BaseURL: "https://api.openai.com", Path: "/v1/audio/transcriptions"},
	},
}

// Get returns a provider by name; ok is false for unknown names.
func Get(name string) (Provider, bool) {
	p, ok := registry[name]
	return p, ok
}

// List returns all provider names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListBatch returns providers usable for the upload-transcribe path.
func ListBatch() []string {
	var names []string
	for name, p := range registry {
		if p.SupportsBatch {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
