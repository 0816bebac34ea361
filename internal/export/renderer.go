// Package export serializes the history log to a file and hands it to a share
// sink.
package export

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/timebox/internal/timer"
)

// Format names a history rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" or "yml". Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or yaml)", s)
	}
}

// Renderer serializes history entries to bytes.
type Renderer interface {
	Render(entries []timer.HistoryEntry) ([]byte, error)
	Ext() string
}

// RendererFor returns the renderer for f.
func RendererFor(f Format) Renderer {
	if f == FormatYAML {
		return YAMLRenderer{}
	}
	return JSONRenderer{}
}

// JSONRenderer renders entries as a 2-space indented JSON array.
type JSONRenderer struct{}

func (JSONRenderer) Render(entries []timer.HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []timer.HistoryEntry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

func (JSONRenderer) Ext() string { return ".json" }

// YAMLRenderer renders entries as a YAML sequence.
type YAMLRenderer struct{}

func (YAMLRenderer) Render(entries []timer.HistoryEntry) ([]byte, error) {
	if entries == nil {
		entries = []timer.HistoryEntry{}
	}
	return yaml.Marshal(entries)
}

func (YAMLRenderer) Ext() string { return ".yaml" }
