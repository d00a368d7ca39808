// Package project reads and writes timeline project documents. JSON is the
// canonical interchange format; YAML is accepted for hand-written projects.
package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/nlecore/internal/timeline"
)

// Format selects the document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the format from a file extension, defaulting to JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Export encodes the persistent part of s as an indented JSON document.
// Playback and selection state are not written.
func Export(s *timeline.State) ([]byte, error) {
	return Marshal(s, FormatJSON)
}

// Import decodes a JSON project document. The result is not validated; load
// it into an editor with Editor.Load to check invariants.
func Import(data []byte) (timeline.State, error) {
	return Unmarshal(data, FormatJSON)
}

func Marshal(s *timeline.State, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(s)
	case FormatJSON, "":
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown project format: %s", format)
	}
}

func Unmarshal(data []byte, format Format) (timeline.State, error) {
	var s timeline.State
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return timeline.State{}, fmt.Errorf("decode yaml project: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &s); err != nil {
			return timeline.State{}, fmt.Errorf("decode json project: %w", err)
		}
	default:
		return timeline.State{}, fmt.Errorf("unknown project format: %s", format)
	}
	s.IsPlaying = false
	s.Selection = nil
	return s, nil
}

// WriteFile writes a project to path in the format implied by its extension.
func WriteFile(path string, s *timeline.State) error {
	data, err := Marshal(s, FormatFor(path))
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// ReadFile reads a project from path in the format implied by its extension.
func ReadFile(path string) (timeline.State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return timeline.State{}, err
	}
	return Unmarshal(data, FormatFor(path))
}

// Open reads a project file and loads it into a new editor. The document's
// tracks replace the default track set.
func Open(path string, opts timeline.Options) (*timeline.Editor, error) {
	s, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts.Tracks = []timeline.TrackSpec{}
	ed := timeline.NewEditor(opts)
	if err := ed.Load(s); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ed, nil
}
