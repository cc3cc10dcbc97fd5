package storygraph

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"ambient-novel/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed stories/*.yaml
var storiesFS embed.FS

// DefaultStoryFile is the embedded story used when no file is configured.
const DefaultStoryFile = "stories/awakening.yaml"

// Format of a story document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// document is the on-disk layout of a story.
type document struct {
	Entry  string         `json:"entry" yaml:"entry"`
	Scenes []domain.Scene `json:"scenes" yaml:"scenes"`
}

// Load decodes a story document and validates it.
func Load(r io.Reader, format Format) (*Store, error) {
	var doc document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", domain.ErrInvalidStory, err)
		}
	case FormatYAML, "":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", domain.ErrInvalidStory, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported story format %q", domain.ErrInvalidStory, format)
	}
	return New(doc.Scenes, doc.Entry)
}

// LoadFile loads a story from disk; the format follows the file extension.
func LoadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open story file: %w", err)
	}
	defer f.Close()
	return Load(f, formatFromPath(path))
}

// Default loads the embedded story.
func Default() (*Store, error) {
	f, err := storiesFS.Open(DefaultStoryFile)
	if err != nil {
		return nil, fmt.Errorf("open embedded story: %w", err)
	}
	defer f.Close()
	return Load(f, FormatYAML)
}

// Open loads path, or the embedded story when path is empty.
func Open(path string) (*Store, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

func formatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}
