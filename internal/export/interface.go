package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/iksnae/copilot-session/internal"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(conv *internal.Conversation, w io.Writer) error
	Extension() string
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "jsonl":
		return &JSONLExporter{}, nil
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: jsonl, md, yaml, json)", format)
	}
}

// Filename returns the file name a conversation is exported to
func Filename(conv *internal.Conversation, e Exporter) string {
	return fmt.Sprintf("session_%d.%s", conv.ID, e.Extension())
}

// WriteFile exports conv into dir and returns the written path
func WriteFile(e Exporter, conv *internal.Conversation, dir string) (string, error) {
	path := filepath.Join(dir, Filename(conv, e))
	f, err := os.Create(path)
	if err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}

	if err := e.Export(conv, f); err != nil {
		_ = f.Close()
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return "", &internal.ExportError{Format: e.Extension(), Path: path, Err: err}
	}
	return path, nil
}
